package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindServer      Kind = "server"
	KindBadResponse Kind = "bad_response"
)

// Error is returned by every Client method that fails after the request was
// built. Op is "METHOD /path".
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	var prefix string
	switch e.Kind {
	case KindNotFound:
		prefix = "job not found"
	case KindRateLimited:
		prefix = "provider rate limit exceeded"
	default:
		prefix = fmt.Sprintf("provider unavailable (%s)", e.Kind)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindServer, KindRateLimited:
		return true
	}
	return false
}

// IsKind reports whether err is a provider error of kind k.
func IsKind(err error, k Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == k
}

// Label returns a metrics label for err: its Kind, "canceled" for context
// cancellation, or "other".
func Label(err error) string {
	if err == nil {
		return "unknown"
	}
	var pe *Error
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}

// classify turns a transport error or an unexpected status into an *Error.
// It returns nil for a nil error with a 2xx status.
func classify(op string, err error, status int) error {
	if err == nil && status >= 200 && status < 300 {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		}
		// dial, reset and DNS failures
		return &Error{Kind: KindConnection, Op: op, Err: err}
	}

	wrapped := fmt.Errorf("http status %d", status)
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Status: status, Err: wrapped}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Op: op, Status: status, Err: wrapped}
	case status >= 500:
		return &Error{Kind: KindServer, Op: op, Status: status, Err: wrapped}
	default:
		return &Error{Kind: KindBadResponse, Op: op, Status: status, Err: wrapped}
	}
}
