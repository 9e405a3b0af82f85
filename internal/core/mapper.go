package core

import "strings"

// ColumnMapping is the resolution of every header to a canonical field.
type ColumnMapping struct {
	Headers []string
	Fields  []Field // "" for unresolved columns
}

// ResolveColumns resolves each header through the synonym table.
func ResolveColumns(headers []string) ColumnMapping {
	m := ColumnMapping{
		Headers: headers,
		Fields:  make([]Field, len(headers)),
	}
	for i, h := range headers {
		if f, ok := ResolveRawHeader(h); ok {
			m.Fields[i] = f
		}
	}
	return m
}

// Unmapped returns the headers that resolved to no field, deduplicated, in
// header order. Blank headers are ignored.
func (m ColumnMapping) Unmapped() []string {
	seen := make(map[string]bool)
	out := []string{}
	for i, f := range m.Fields {
		h := m.Headers[i]
		if f != "" || h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Missing returns the required fields no header resolved to, in
// RequiredFields order.
func (m ColumnMapping) Missing() []Field {
	present := make(map[Field]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f != "" {
			present[f] = true
		}
	}
	out := []Field{}
	for _, f := range RequiredFields {
		if !present[f] {
			out = append(out, f)
		}
	}
	return out
}

// MapRow converts one data row. Empty cells are skipped, other cells are
// trimmed and assigned; when two columns resolve to the same field the first
// non-empty value wins. The second result is false when the row has no usable
// name.
func (m ColumnMapping) MapRow(row []string) (Record, bool) {
	var rec Record
	for i, f := range m.Fields {
		if f == "" || i >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[i])
		if v == "" || rec.Has(f) {
			continue
		}
		rec.Set(f, v)
	}
	return rec, rec.Name != ""
}

// MapRows converts parsed rows into candidate records and computes the
// diagnostics shown before an import is confirmed. Row order is preserved;
// rows without a name are dropped and counted, not reported as errors.
// Coordinates are coerced but not range checked here.
func MapRows(headers []string, rows [][]string) ([]Record, ImportDiagnostics) {
	m := ResolveColumns(headers)

	candidates := make([]Record, 0, len(rows))
	diag := ImportDiagnostics{
		UnmappedHeaders:       m.Unmapped(),
		MissingRequiredFields: m.Missing(),
	}

	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		diag.RowCount++

		rec, ok := m.MapRow(row)
		if !ok {
			diag.DroppedRows++
			continue
		}
		candidates = append(candidates, rec)
	}

	diag.CandidateCount = len(candidates)
	return candidates, diag
}

// MapParsed is MapRows over a ParseResult.
func MapParsed(p *ParseResult) ([]Record, ImportDiagnostics) {
	return MapRows(p.Headers, p.Rows)
}

// isEmptyRow returns true if all cells are blank.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// PlaceToRecord maps a provider result to the record subset it can fill.
// status is applied when non-empty.
func PlaceToRecord(p PlaceResult, status string) Record {
	rec := Record{
		Name:   strings.TrimSpace(p.Name),
		Site:   trimmedPtr(p.Website),
		City:   StringPtr(p.Address),
		Phone1: trimmedPtr(p.Phone),
		Status: StringPtr(status),
	}
	if len(p.Categories) > 0 {
		rec.Category = StringPtr(p.Categories[0])
	}
	if p.Lat != nil {
		lat := *p.Lat
		rec.Latitude = &lat
	}
	if p.Lng != nil {
		lng := *p.Lng
		rec.Longitude = &lng
	}
	return rec
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return StringPtr(*s)
}
