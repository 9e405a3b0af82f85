package core

// validation.go holds the record checks applied at the persistence boundary.
//
// Mapping is deliberately lenient: coordinates are coerced but never range
// checked there, so "91" survives mapping and is rejected here with a range
// error instead of being clamped.

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted record name, in runes.
const MaxNameLength = 255

// Validation codes recorded in RowError.Code.
const (
	CodeNameRequired    = "VAL003"
	CodeNameMalformed   = "VAL008"
	CodeCoordinateRange = "VAL009"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   Field  // Canonical field
	Value   string // The invalid value
	Code    string // Stable code for RowError
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidateRecord checks a candidate before it is persisted and returns every
// problem found. An empty result means the record may be stored.
func ValidateRecord(rec Record) []ValidationError {
	var errs []ValidationError

	name := strings.TrimSpace(rec.Name)
	switch {
	case name == "":
		errs = append(errs, ValidationError{
			Field:   FieldName,
			Code:    CodeNameRequired,
			Message: "required field is empty",
		})
	case !utf8.ValidString(name) || strings.ContainsRune(name, utf8.RuneError):
		errs = append(errs, ValidationError{
			Field:   FieldName,
			Value:   name,
			Code:    CodeNameMalformed,
			Message: "malformed name: invalid encoding",
		})
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		errs = append(errs, ValidationError{
			Field:   FieldName,
			Value:   name,
			Code:    CodeNameMalformed,
			Message: "malformed name: contains control characters",
		})
	case utf8.RuneCountInString(name) > MaxNameLength:
		errs = append(errs, ValidationError{
			Field:   FieldName,
			Value:   name,
			Code:    CodeNameMalformed,
			Message: fmt.Sprintf("malformed name: longer than %d characters", MaxNameLength),
		})
	}

	if rec.Latitude != nil && (*rec.Latitude < -90 || *rec.Latitude > 90) {
		errs = append(errs, ValidationError{
			Field:   FieldLatitude,
			Value:   fmt.Sprint(*rec.Latitude),
			Code:    CodeCoordinateRange,
			Message: "coordinate out of range: latitude must be between -90 and 90",
		})
	}
	if rec.Longitude != nil && (*rec.Longitude < -180 || *rec.Longitude > 180) {
		errs = append(errs, ValidationError{
			Field:   FieldLongitude,
			Value:   fmt.Sprint(*rec.Longitude),
			Code:    CodeCoordinateRange,
			Message: "coordinate out of range: longitude must be between -180 and 180",
		})
	}

	return errs
}
