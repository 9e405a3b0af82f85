package core

// export.go writes records as delimited text readable by Parse.
//
// A value is quoted when it contains a quote, comma, line feed or carriage
// return; inner quotes are doubled. Everything else is written verbatim.

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// TemplateHeader returns the header row of the import template: "id"
// followed by RequiredFields.
func TemplateHeader() []string {
	header := make([]string, 0, len(RequiredFields)+1)
	header = append(header, "id")
	for _, f := range RequiredFields {
		header = append(header, string(f))
	}
	return header
}

// TemplateCSV returns the import template: one header row, no data.
func TemplateCSV() string {
	return strings.Join(TemplateHeader(), ",") + "\n"
}

// EscapeCSV quotes a value when the parser would otherwise split it.
func EscapeCSV(s string) string {
	if !strings.ContainsAny(s, "\",\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteRow writes one escaped, comma-joined row terminated by a line feed.
func WriteRow(w io.Writer, cells []string) error {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeCSV(c))
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// RecordWriter streams records as CSV. With IncludeID the layout matches
// TemplateHeader; otherwise the header is RequiredFields alone.
type RecordWriter struct {
	w         *bufio.Writer
	IncludeID bool
	wroteHead bool
}

// NewRecordWriter wraps w.
func NewRecordWriter(w io.Writer, includeID bool) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w), IncludeID: includeID}
}

// Write emits the header on first use, then rec.
func (rw *RecordWriter) Write(rec Record) error {
	if !rw.wroteHead {
		header := TemplateHeader()
		if !rw.IncludeID {
			header = header[1:]
		}
		if err := WriteRow(rw.w, header); err != nil {
			return err
		}
		rw.wroteHead = true
	}

	cells := make([]string, 0, len(RequiredFields)+1)
	if rw.IncludeID {
		id := ""
		if rec.ID != 0 {
			id = strconv.FormatInt(rec.ID, 10)
		}
		cells = append(cells, id)
	}
	for _, f := range RequiredFields {
		v, _ := rec.Get(f)
		cells = append(cells, v)
	}
	return WriteRow(rw.w, cells)
}

// Flush writes buffered rows. An empty export still gets its header.
func (rw *RecordWriter) Flush() error {
	if !rw.wroteHead {
		header := TemplateHeader()
		if !rw.IncludeID {
			header = header[1:]
		}
		if err := WriteRow(rw.w, header); err != nil {
			return err
		}
		rw.wroteHead = true
	}
	return rw.w.Flush()
}

// WriteRecords writes recs with a header row.
func WriteRecords(w io.Writer, recs []Record, includeID bool) error {
	rw := NewRecordWriter(w, includeID)
	for _, rec := range recs {
		if err := rw.Write(rec); err != nil {
			return err
		}
	}
	return rw.Flush()
}
