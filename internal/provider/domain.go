package provider

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of a website, e.g.
// "https://shop.acme.co.uk/contatti" -> "acme.co.uk". Scheme-less input is
// accepted.
func RegistrableDomain(website string) (string, error) {
	raw := strings.TrimSpace(website)
	if raw == "" {
		return "", fmt.Errorf("empty website")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse website %q: %w", website, err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("website %q has no host", website)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("registrable domain of %q: %w", host, err)
	}
	return domain, nil
}
