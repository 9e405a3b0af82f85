package core

import (
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"41.1171", 41.1171, true},
		{"41,1171", 41.1171, true},
		{" -16,5 ", -16.5, true},
		{"90", 90, true},
		{"-180", -180, true},
		{"181", 181, true},
		{"1,234.5", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"+Inf", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCoordinate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseCoordinate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ParseCoordinate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatCoordinate(t *testing.T) {
	if _, ok := FormatCoordinate(nil); ok {
		t.Error("FormatCoordinate(nil) should report absent")
	}
	v := 41.1171
	if got, _ := FormatCoordinate(&v); got != "41.1171" {
		t.Errorf("FormatCoordinate() = %q, want 41.1171", got)
	}
}

func TestToPgText(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want pgtype.Text
	}{
		{"nil", nil, pgtype.Text{}},
		{"blank", strp("   "), pgtype.Text{}},
		{"value", strp("Bari"), pgtype.Text{String: "Bari", Valid: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToPgText(tt.in); got != tt.want {
				t.Errorf("ToPgText() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if got := FromPgText(pgtype.Text{String: "x", Valid: true}); got == nil || *got != "x" {
		t.Errorf("FromPgText() = %v", got)
	}
	if got := FromPgText(pgtype.Text{}); got != nil {
		t.Errorf("FromPgText(invalid) = %v, want nil", got)
	}
}

func TestToPgFloat8(t *testing.T) {
	if got := ToPgFloat8(nil); got.Valid {
		t.Error("ToPgFloat8(nil) should be invalid")
	}
	got := ToPgFloat8(floatp(-90))
	if !got.Valid || got.Float64 != -90 {
		t.Errorf("ToPgFloat8(-90) = %+v", got)
	}
	if back := FromPgFloat8(got); back == nil || *back != -90 {
		t.Errorf("FromPgFloat8() = %v", back)
	}
}

func TestToPgUUID(t *testing.T) {
	id := "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	u := ToPgUUID(id)
	if !u.Valid || PgUUIDToString(u) != id {
		t.Errorf("round trip = %q", PgUUIDToString(u))
	}
	if ToPgUUID("not-a-uuid").Valid || PgUUIDToString(pgtype.UUID{}) != "" {
		t.Error("invalid UUID handling")
	}
}
