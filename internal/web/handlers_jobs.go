package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/jobs"
	"github.com/JonMunkholm/crmingest/internal/logging"
	"github.com/JonMunkholm/crmingest/internal/provider"
	"github.com/JonMunkholm/crmingest/internal/web/templates"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// CreateJobResponse is returned by POST /api/jobs.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// handleCreateJob submits a search and starts watching the new job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var params core.SearchParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&params); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", jobs.ErrInvalidSearch, err))
		return
	}

	id, err := s.jobs.Create(r.Context(), params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.jobs.Watch(id, 0)

	logging.ForJob(r.Context(), id).Info("search job submitted")
	writeJSONStatus(w, http.StatusCreated, CreateJobResponse{JobID: id})
}

// handleListJobs lists the provider's recent jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.List(r.Context(), parseIntParam(r, "limit", jobs.DefaultLimit))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.JobList(list))
		return
	}
	writeJSON(w, list)
}

// JobResponse is a job's current status plus local bookkeeping.
type JobResponse struct {
	core.JobSnapshot
	Watching   bool                `json:"watching"`
	Importing  bool                `json:"importing"`
	LastImport *jobs.ImportSummary `json:"last_import,omitempty"`
}

// handleGetJob fetches a job's status from the provider.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	snap, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.JobCard(snap))
		return
	}

	resp := JobResponse{JobSnapshot: snap}
	if e, ok := s.jobs.Registry().Get(id); ok {
		resp.Watching = e.Watching
		resp.Importing = e.Importing
		resp.LastImport = e.LastImport
	}
	writeJSON(w, resp)
}

// handleForgetJob stops watching a job and drops local state for it.
func (s *Server) handleForgetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if !s.jobs.Forget(id) {
		s.respondError(w, r, &provider.Error{Kind: provider.KindNotFound, Op: "forget " + id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJobEvents streams status snapshots as server-sent events until the
// job is terminal or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logging.ForJob(r.Context(), id).Error("streaming not supported", "error", err)
		return
	}

	seq := 0
	var last core.JobSnapshot
	for snap := range s.jobs.Poll(r.Context(), id, 0) {
		last = snap
		data, err := json.Marshal(snap)
		if err != nil {
			logging.ForJob(r.Context(), id).Error("encode job event", "error", err)
			return
		}
		seq++
		if _, err := fmt.Fprintf(w, "id: %d\nevent: status\ndata: %s\n\n", seq, data); err != nil {
			return
		}
		rc.Flush()
	}

	if r.Context().Err() != nil {
		return
	}
	// A stream that ends without a terminal status means the provider no
	// longer knows the job.
	if last.Status.Terminal() {
		fmt.Fprintf(w, "event: done\ndata: {\"status\":%q}\n\n", last.Status)
	} else {
		fmt.Fprint(w, "event: gone\ndata: {}\n\n")
	}
	rc.Flush()
}

// handleJobPlaces returns one page of a job's results.
func (s *Server) handleJobPlaces(w http.ResponseWriter, r *http.Request) {
	places, err := s.jobs.Places(r.Context(), chi.URLParam(r, "jobID"),
		parseIntParam(r, "limit", jobs.DefaultPageSize), parseOffset(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, places)
}

// handleJobCount returns the number of results of a job.
func (s *Server) handleJobCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobs.Count(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"total": n})
}

// handleJobExport returns the provider download URL of a job's results.
func (s *Server) handleJobExport(w http.ResponseWriter, r *http.Request) {
	u, err := s.jobs.ExportURL(chi.URLParam(r, "jobID"), r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"url": u})
}

// handleImportJob imports a completed job's results.
func (s *Server) handleImportJob(w http.ResponseWriter, r *http.Request) {
	summary, err := s.jobs.ImportJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.ImportResult(&core.ImportOutcome{
			Result: core.BatchResult{Inserted: summary.Inserted, Failed: summary.Failed, Errors: summary.Errors},
		}))
		return
	}
	writeJSON(w, summary)
}

// EnrichResponse is returned by POST /api/enrich-contacts.
type EnrichResponse struct {
	Emails []string `json:"emails"`
}

// handleEnrichContacts looks up contact emails for a business.
func (s *Server) handleEnrichContacts(w http.ResponseWriter, r *http.Request) {
	var req provider.EnrichRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", jobs.ErrInvalidEnrich, err))
		return
	}

	emails, err := s.jobs.EnrichContacts(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if emails == nil {
		emails = []string{}
	}
	writeJSON(w, EnrichResponse{Emails: emails})
}

// render writes an HTML fragment.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render fragment", "error", err)
	}
}
