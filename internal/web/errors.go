package web

// errors.go maps errors to HTTP responses.
//
// The technical error is logged with the request id; the client receives the
// coded message from core.MapError, as JSON for API clients or as an alert
// fragment for HTMX requests.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/jobs"
	"github.com/JonMunkholm/crmingest/internal/logging"
	"github.com/JonMunkholm/crmingest/internal/provider"
	"github.com/JonMunkholm/crmingest/internal/web/templates"
)

var (
	errRateLimited  = errors.New("rate limit exceeded")
	errFileTooLarge = errors.New("file too large")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status of err.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var parseErr *core.ParseError

	switch {
	case errors.As(err, &maxBytes), errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrInvalidDelimiter),
		errors.Is(err, jobs.ErrInvalidSearch),
		errors.Is(err, jobs.ErrInvalidEnrich):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrImportInFlight), errors.Is(err, jobs.ErrJobNotCompleted):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrExportUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case provider.KindNotFound:
			return http.StatusNotFound
		case provider.KindRateLimited:
			return http.StatusTooManyRequests
		case provider.KindTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form with the status from
// statusFor.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if isHTMX(r) {
		renderErrorPartial(w, r, userMsg, status)
		return
	}
	respondErrorJSON(w, userMsg, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error alert", "error", err)
	}
}

// isHTMX reports whether the request came from HTMX.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsHTML reports whether the client asked for an HTML fragment.
func wantsHTML(r *http.Request) bool {
	return isHTMX(r) || strings.Contains(r.Header.Get("Accept"), "text/html")
}
