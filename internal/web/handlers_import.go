package web

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/logging"
	"github.com/JonMunkholm/crmingest/internal/web/templates"
)

// multipartMemory is the part of a multipart upload kept in memory.
const multipartMemory = 8 << 20

// handleTemplate serves the empty CSV import template.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="clienti_template.csv"`)
	fmt.Fprint(w, s.service.Template())
}

// handleExportRecords streams every stored record as CSV.
func (s *Server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("clienti_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := &committedWriter{ResponseWriter: w}
	if err := s.service.ExportRecords(r.Context(), cw); err != nil {
		if cw.committed {
			// headers are gone; the truncated body is all the client gets
			logging.FromContext(r.Context()).Error("record export aborted", "error", err)
			return
		}
		w.Header().Del("Content-Disposition")
		s.respondError(w, r, err)
	}
}

// committedWriter records whether any body byte was written.
type committedWriter struct {
	http.ResponseWriter
	committed bool
}

func (c *committedWriter) Write(b []byte) (int, error) {
	c.committed = true
	return c.ResponseWriter.Write(b)
}

// handlePreview parses an uploaded file and returns the mapping preview.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.Import.MaxFileSize; limit > 0 {
		if r.ContentLength > limit {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, limit))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxBytes.Limit))
			return
		}
		s.respondError(w, r, core.ErrNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	preview, err := s.service.Preview(r.Context(), filepath.Base(header.Filename), file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.ImportPreview(preview))
		return
	}
	writeJSON(w, preview)
}

// handleConfirm imports a previewed file.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.service.Confirm(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		s.render(w, r, http.StatusOK, templates.ImportResult(outcome))
		return
	}
	writeJSON(w, outcome)
}

// handleDiscard drops a previewed file.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	if isHTMX(r) {
		// HTMX swaps the preview out with the empty body
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportHistory lists recent import runs.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.History(r.Context(), parseIntParam(r, "limit", 20))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, runs)
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseOffset parses the offset query parameter; negative or malformed
// values become 0.
func parseOffset(r *http.Request) int {
	i, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || i < 0 {
		return 0
	}
	return i
}
