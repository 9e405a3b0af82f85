package core

// normalize.go resolves free-form spreadsheet column labels to canonical fields.
//
// Labels are first normalized (decomposed, stripped of diacritics, lowercased,
// punctuation collapsed to single spaces) and then looked up in a static
// synonym table. Adding a synonym is a one-line change to headerSynonyms.

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// headerSynonyms lists, per canonical field, every normalized label that
// resolves to it. Entries must already be in NormalizeHeader form.
var headerSynonyms = map[Field][]string{
	FieldName: {
		"name", "nome", "ragione sociale", "ragione_sociale", "denominazione",
		"azienda", "company", "company name", "business name",
	},
	FieldSite: {
		"site", "sito", "sito web", "sito internet", "website", "web site", "web", "url",
	},
	FieldCity: {
		"city", "citta", "citt a", "comune", "localita", "town",
	},
	FieldCategory: {
		"category", "categoria", "settore", "tipologia",
	},
	FieldEmail1: {
		"email", "e mail", "mail", "posta elettronica",
		"email 1", "email1", "email_1", "e mail 1", "mail 1",
	},
	FieldEmail2: {
		"email 2", "email2", "email_2", "e mail 2", "mail 2",
	},
	FieldEmail3: {
		"email 3", "email3", "email_3", "e mail 3", "mail 3",
	},
	FieldPhone1: {
		"phone", "telefono", "tel", "cell", "cellulare", "mobile", "gsm",
		"phone 1", "phone1", "phone_1", "telefono 1", "telefono1",
		"cell 1", "cellulare 1", "mobile 1",
	},
	FieldPhone2: {
		"phone 2", "phone2", "phone_2", "telefono 2", "telefono2",
		"cell 2", "cellulare 2", "mobile 2",
	},
	FieldPhone3: {
		"phone 3", "phone3", "phone_3", "telefono 3", "telefono3",
		"cell 3", "cellulare 3", "mobile 3",
	},
	FieldLatitude: {
		"lat", "latitude", "latitudine",
	},
	FieldLongitude: {
		"lon", "lng", "long", "longitude", "longitudine",
	},
	FieldAssign: {
		"assign", "assegnato", "assegnatario", "assegnato a", "assigned to", "owner",
	},
	FieldContactMethod: {
		"contact method", "contact_method", "metodo contatto", "metodo di contatto",
	},
	FieldDataStart: {
		"data start", "data_start", "start date", "data inizio", "data di inizio",
	},
	FieldDataFollowUp1: {
		"follow up 1", "followup 1", "followup1", "follow up", "data follow up 1", "data_follow_up_1",
	},
	FieldDataFollowUp2: {
		"follow up 2", "followup 2", "followup2", "data follow up 2", "data_follow_up_2",
	},
	FieldStatus: {
		"status", "stato",
	},
	FieldNote: {
		"note", "notes", "nota", "commenti",
	},
}

// headerIndex is headerSynonyms inverted: normalized label -> field.
var headerIndex = buildHeaderIndex(headerSynonyms)

func buildHeaderIndex(synonyms map[Field][]string) map[string]Field {
	idx := make(map[string]Field)
	for field, labels := range synonyms {
		for _, label := range labels {
			if NormalizeHeader(label) != label {
				panic(fmt.Sprintf("header synonym %q for %s is not normalized", label, field))
			}
			if prev, exists := idx[label]; exists {
				panic(fmt.Sprintf("header synonym %q registered for both %s and %s", label, prev, field))
			}
			idx[label] = field
		}
	}
	return idx
}

// NormalizeHeader canonicalizes a column label: Unicode decomposition,
// combining marks removed, lowercased, every run of characters outside
// [a-z0-9_] collapsed to one space, then trimmed.
//
// "Città", "citta" and " CITTA " all normalize to "citta".
func NormalizeHeader(header string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, header)
	if err != nil {
		stripped = header
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSpace := false
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// ResolveHeader maps a normalized label to its canonical field.
func ResolveHeader(normalized string) (Field, bool) {
	f, ok := headerIndex[normalized]
	return f, ok
}

// ResolveRawHeader normalizes and resolves in one step.
func ResolveRawHeader(header string) (Field, bool) {
	return ResolveHeader(NormalizeHeader(header))
}

// Synonyms returns the labels that resolve to f, in table order.
func Synonyms(f Field) []string {
	return append([]string(nil), headerSynonyms[f]...)
}
