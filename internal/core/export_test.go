package core

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestTemplateCSV(t *testing.T) {
	want := "id,name,site,city,category,email_1,email_2,email_3,phone_1,phone_2,phone_3," +
		"latitude,longitude,assign,contact_method,data_start,data_follow_up_1,data_follow_up_2,status,note\n"
	if got := TemplateCSV(); got != want {
		t.Errorf("TemplateCSV() = %q, want %q", got, want)
	}
}

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
		{"two\nlines", "\"two\nlines\""},
		{"cr\r", "\"cr\r\""},
		{" padded ", " padded "},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeCSV(tt.in); got != tt.want {
			t.Errorf("EscapeCSV(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip_Cells(t *testing.T) {
	rows := [][]string{
		{"h1", "h2", "h3"},
		{"Rossi, Mario", `Bar "Da Nino"`, "line 1\nline 2"},
		{" leading", "trailing ", "\r\n"},
		{`""`, ",,,", "ünïcödé"},
	}

	var buf bytes.Buffer
	for _, r := range rows {
		if err := WriteRow(&buf, r); err != nil {
			t.Fatalf("WriteRow() error = %v", err)
		}
	}

	got, err := ParseString(buf.String())
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	if !reflect.DeepEqual(got.Rows, rows[1:]) {
		t.Errorf("Rows = %q, want %q", got.Rows, rows[1:])
	}
}

func TestRoundTrip_Records(t *testing.T) {
	records := []Record{
		{
			Name:          `Trattoria "Il Pozzo", Bari`,
			Site:          strp("https://ilpozzo.example"),
			City:          strp("Bari"),
			Category:      strp("ristorante"),
			Email1:        strp("info@ilpozzo.example"),
			Phone1:        strp("+39 080 123456"),
			Latitude:      floatp(41.1171),
			Longitude:     floatp(16.8719),
			Assign:        strp("Giulia"),
			ContactMethod: strp("telefono"),
			DataStart:     strp("2024-03-01"),
			Status:        strp("Non contattato"),
			Note:          strp("prima riga\nseconda riga, con virgola\r\nterza \"citata\""),
		},
		{
			Name:      "Minimal",
			Latitude:  floatp(-90),
			Longitude: floatp(180),
		},
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, records, false); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}

	parsed, err := ParseString(buf.String())
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	got, diag := MapParsed(parsed)

	if len(diag.UnmappedHeaders) != 0 || len(diag.MissingRequiredFields) != 0 {
		t.Errorf("diagnostics = %+v, want clean", diag)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, records)
	}
}

func TestRecordWriter_EmptyExportHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, nil, true); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}
	if buf.String() != TemplateCSV() {
		t.Errorf("empty export = %q, want template header", buf.String())
	}
}

func TestRecordWriter_IncludeID(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, []Record{{ID: 42, Name: "Acme"}}, true); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "42,Acme,") {
		t.Errorf("export = %q", buf.String())
	}
}
