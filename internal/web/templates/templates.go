// Package templates renders the HTML fragments returned to HTMX requests.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/crmingest/internal/core"
)

// htmlWriter stops at the first write error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err == nil {
		_, hw.err = io.WriteString(hw.w, s)
	}
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) printf(format string, args ...any) {
	if hw.err == nil {
		_, hw.err = fmt.Fprintf(hw.w, format, args...)
	}
}

func component(fn func(hw *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		fn(hw)
		return hw.err
	})
}

// ErrorAlert renders a coded, user-facing error.
func ErrorAlert(message, action, code string) templ.Component {
	return component(func(hw *htmlWriter) {
		hw.raw(`<div class="alert alert-error" role="alert"><p class="alert-message">`)
		hw.text(message)
		hw.raw(`</p>`)
		if action != "" {
			hw.raw(`<p class="alert-action">`)
			hw.text(action)
			hw.raw(`</p>`)
		}
		hw.raw(`<small class="alert-code">Code: `)
		hw.text(code)
		hw.raw(`</small></div>`)
	})
}

// ImportPreview renders the column mapping, diagnostics and sample rows of a
// previewed file with confirm and discard actions.
func ImportPreview(p *core.PreviewResult) templ.Component {
	return component(func(hw *htmlWriter) {
		id := templ.EscapeString(p.ImportID)
		hw.printf(`<section class="import-preview" id="import-%s">`, id)
		hw.raw(`<h2>`)
		hw.text(p.FileName)
		hw.raw(`</h2>`)
		hw.printf(`<p class="summary">%d rows, %d candidates, %d dropped</p>`,
			p.Diagnostics.RowCount, p.Diagnostics.CandidateCount, p.Diagnostics.DroppedRows)

		if len(p.Diagnostics.UnmappedHeaders) > 0 {
			hw.raw(`<p class="warning">Ignored columns: `)
			hw.text(strings.Join(p.Diagnostics.UnmappedHeaders, ", "))
			hw.raw(`</p>`)
		}
		if len(p.Diagnostics.MissingRequiredFields) > 0 {
			missing := make([]string, len(p.Diagnostics.MissingRequiredFields))
			for i, f := range p.Diagnostics.MissingRequiredFields {
				missing[i] = string(f)
			}
			hw.raw(`<p class="warning">Missing fields: `)
			hw.text(strings.Join(missing, ", "))
			hw.raw(`</p>`)
		}

		hw.raw(`<table class="columns"><thead><tr><th>Column</th><th>Field</th></tr></thead><tbody>`)
		for _, c := range p.Columns {
			hw.raw(`<tr><td>`)
			hw.text(c.Header)
			hw.raw(`</td><td>`)
			if c.Field == "" {
				hw.raw(`<em>ignored</em>`)
			} else {
				hw.text(string(c.Field))
			}
			hw.raw(`</td></tr>`)
		}
		hw.raw(`</tbody></table>`)

		hw.raw(`<table class="sample"><thead><tr><th>Name</th><th>City</th><th>Latitude</th><th>Longitude</th></tr></thead><tbody>`)
		for _, rec := range p.Sample {
			hw.raw(`<tr>`)
			for _, f := range []core.Field{core.FieldName, core.FieldCity, core.FieldLatitude, core.FieldLongitude} {
				v, _ := rec.Get(f)
				hw.raw(`<td>`)
				hw.text(v)
				hw.raw(`</td>`)
			}
			hw.raw(`</tr>`)
		}
		hw.raw(`</tbody></table>`)

		hw.printf(`<div class="actions"><button hx-post="/api/imports/%s/confirm" hx-target="#import-%s" hx-swap="outerHTML">Import %d records</button>`,
			id, id, p.Diagnostics.CandidateCount)
		hw.printf(`<button hx-delete="/api/imports/%s" hx-target="#import-%s" hx-swap="outerHTML">Discard</button></div>`, id, id)
		hw.raw(`</section>`)
	})
}

// ImportResult renders the outcome of a confirmed import.
func ImportResult(o *core.ImportOutcome) templ.Component {
	return component(func(hw *htmlWriter) {
		hw.raw(`<section class="import-result">`)
		hw.printf(`<p class="summary">%d inserted, %d failed</p>`, o.Result.Inserted, o.Result.Failed)
		if len(o.Result.Errors) > 0 {
			hw.raw(`<ul class="row-errors">`)
			for _, e := range o.Result.Errors {
				hw.printf(`<li>Row %d: `, e.Index+1)
				hw.text(e.Code)
				if e.Message != "" {
					hw.raw(` `)
					hw.text(e.Message)
				}
				hw.raw(`</li>`)
			}
			hw.raw(`</ul>`)
		}
		hw.raw(`</section>`)
	})
}

// JobCard renders one job's latest status. Completed jobs get an import action.
func JobCard(snap core.JobSnapshot) templ.Component {
	return component(func(hw *htmlWriter) {
		id := templ.EscapeString(snap.ID)
		hw.printf(`<article class="job job-%s" id="job-%s">`, templ.EscapeString(string(snap.Status)), id)
		hw.raw(`<h3>`)
		if snap.Name != "" {
			hw.text(snap.Name)
		} else {
			hw.text(snap.ID)
		}
		hw.raw(`</h3>`)
		hw.printf(`<progress max="100" value="%d"></progress>`, snap.Progress)
		hw.raw(`<span class="status">`)
		hw.text(string(snap.Status))
		hw.raw(`</span>`)

		switch snap.Status {
		case core.JobFailed:
			hw.raw(`<p class="error">`)
			hw.text(snap.Error)
			hw.raw(`</p>`)
		case core.JobCompleted:
			hw.printf(`<button hx-post="/api/jobs/%s/import" hx-target="#job-%s" hx-swap="beforeend">Import results</button>`, id, id)
		}
		hw.raw(`</article>`)
	})
}

// JobList renders a job card per listed job.
func JobList(jobs []core.ScrapeJob) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="jobs">`)
		if len(jobs) == 0 {
			hw.raw(`<p class="empty">No search jobs yet</p>`)
		}
		for _, j := range jobs {
			if hw.err != nil {
				break
			}
			hw.err = JobCard(core.JobSnapshot{
				ID:       j.ID,
				Name:     j.Name,
				Status:   j.Status,
				Progress: j.Progress,
				Error:    j.Error,
			}).Render(ctx, w)
		}
		hw.raw(`</div>`)
		return hw.err
	})
}
