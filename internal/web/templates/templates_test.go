package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/crmingest/internal/core"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestErrorAlert(t *testing.T) {
	html := render(t, ErrorAlert("Bad <file>", "", "FILE002"))

	if !strings.Contains(html, "Bad &lt;file&gt;") {
		t.Errorf("message not escaped: %s", html)
	}
	if strings.Contains(html, "alert-action") {
		t.Error("empty action rendered")
	}
	if !strings.Contains(html, "Code: FILE002") {
		t.Errorf("code missing: %s", html)
	}
}

func TestImportPreview(t *testing.T) {
	lat := 41.1
	p := &core.PreviewResult{
		ImportID: "abc",
		FileName: "clienti.csv",
		Columns: []core.ColumnPreview{
			{Header: "Nome", Field: core.FieldName},
			{Header: "Fatturato"},
		},
		Diagnostics: core.ImportDiagnostics{
			UnmappedHeaders: []string{"Fatturato"},
			CandidateCount:  1,
			RowCount:        2,
			DroppedRows:     1,
		},
		Sample: []core.Record{{Name: "Bar <Sport>", Latitude: &lat}},
	}
	html := render(t, ImportPreview(p))

	for _, want := range []string{
		`id="import-abc"`,
		"2 rows, 1 candidates, 1 dropped",
		"Ignored columns: Fatturato",
		"<em>ignored</em>",
		"Bar &lt;Sport&gt;",
		"<td>41.1</td>",
		`hx-post="/api/imports/abc/confirm"`,
		`hx-delete="/api/imports/abc"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %s", want, html)
		}
	}
}

func TestJobCard(t *testing.T) {
	tests := []struct {
		name    string
		snap    core.JobSnapshot
		want    string
		notWant string
	}{
		{
			name:    "running",
			snap:    core.JobSnapshot{ID: "j1", Status: core.JobRunning, Progress: 40},
			want:    `value="40"`,
			notWant: "Import results",
		},
		{
			name: "completed offers import",
			snap: core.JobSnapshot{ID: "j1", Name: "Bari bars", Status: core.JobCompleted, Progress: 100},
			want: `hx-post="/api/jobs/j1/import"`,
		},
		{
			name:    "failed shows error",
			snap:    core.JobSnapshot{ID: "j1", Status: core.JobFailed, Error: "quota <exceeded>"},
			want:    "quota &lt;exceeded&gt;",
			notWant: "Import results",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := render(t, JobCard(tt.snap))
			if !strings.Contains(html, tt.want) {
				t.Errorf("missing %q in %s", tt.want, html)
			}
			if tt.notWant != "" && strings.Contains(html, tt.notWant) {
				t.Errorf("unexpected %q in %s", tt.notWant, html)
			}
		})
	}
}

func TestJobList(t *testing.T) {
	if html := render(t, JobList(nil)); !strings.Contains(html, "No search jobs yet") {
		t.Errorf("empty list = %s", html)
	}

	html := render(t, JobList([]core.ScrapeJob{
		{ID: "a", Status: core.JobQueued},
		{ID: "b", Status: core.JobCompleted},
	}))
	if strings.Count(html, "<article") != 2 || !strings.HasSuffix(html, "</div>") {
		t.Errorf("list = %s", html)
	}
}

func TestImportResult(t *testing.T) {
	html := render(t, ImportResult(&core.ImportOutcome{Result: core.BatchResult{
		Inserted: 1,
		Failed:   1,
		Errors:   []core.RowError{{Index: 0, Code: "VAL003", Message: "name: required field is empty"}},
	}}))
	if !strings.Contains(html, "1 inserted, 1 failed") || !strings.Contains(html, "Row 1: VAL003") {
		t.Errorf("result = %s", html)
	}
}
