package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint \"clienti_pkey\""), "DB001"},
		{"check constraint", errors.New("new row for relation \"clienti\" violates check constraint \"clienti_latitude_check\""), "DB003"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DB004"},
		{"value too long", errors.New("value too long for type character varying(255)"), "DB008"},
		{"missing name", ValidationError{Field: FieldName, Code: CodeNameRequired, Message: "required field is empty"}, "VAL003"},
		{"coordinate range", ValidationError{Field: FieldLatitude, Code: CodeCoordinateRange, Message: "coordinate out of range: latitude must be between -90 and 90"}, "VAL009"},
		{"parse error", &ParseError{Line: 3, Column: 7, Err: ErrUnterminatedQuote}, "FILE002"},
		{"empty file", ErrEmptyFile, "FILE005"},
		{"no file", ErrNoFile, "FILE004"},
		{"limiter full", ErrTooManyImports, "UPL002"},
		{"session gone", fmt.Errorf("confirm: %w", ErrSessionNotFound), "UPL003"},
		{"cancelled", context.Canceled, "UPL004"},
		{"deadline", context.DeadlineExceeded, "UPL005"},
		{"case insensitive", errors.New("DUPLICATE KEY value violates"), "DB001"},
		{"unknown error", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("duplicate key value violates"))

	expected := "A record with this ID already exists (Code: DB001). Remove the id column or leave it empty"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrEmptyFile, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		userErr := NewUserError(ErrSessionNotFound)

		if userErr.Error() != "Import session not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrSessionNotFound) {
			t.Error("Unwrap() should return original error")
		}
	})
}
