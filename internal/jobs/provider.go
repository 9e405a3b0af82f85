package jobs

import (
	"context"
	"errors"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/provider"
)

var (
	// ErrInvalidSearch is returned by Create before any network call when
	// the request lacks a query or coordinates.
	ErrInvalidSearch = errors.New("invalid search")

	// ErrImportInFlight is returned when results of the same job are
	// already being imported.
	ErrImportInFlight = errors.New("import already in progress")

	// ErrJobNotCompleted is returned when importing results of a job that
	// has not completed.
	ErrJobNotCompleted = errors.New("job not completed")

	// ErrInvalidEnrich is returned when an enrich request names nothing to
	// look up.
	ErrInvalidEnrich = errors.New("invalid enrich request: website, domain or emails required")
)

// Provider is the external job service. *provider.Client implements it.
type Provider interface {
	CreateJob(ctx context.Context, params core.SearchParams) (string, error)
	GetJob(ctx context.Context, id string) (core.JobSnapshot, error)
	ListJobs(ctx context.Context, limit int) ([]core.ScrapeJob, error)
	ListPlaces(ctx context.Context, id string, limit, offset int) ([]core.PlaceResult, error)
	CountPlaces(ctx context.Context, id string) (int, error)
	ExportURL(id, format string) (string, error)
	EnrichContacts(ctx context.Context, req provider.EnrichRequest) ([]string, error)
}

var _ Provider = (*provider.Client)(nil)

// RecordImporter runs a batch import. *core.Service implements it.
type RecordImporter interface {
	ImportRecords(ctx context.Context, source core.ImportSource, reference string, recs []core.Record, progress core.ProgressFunc) (*core.ImportOutcome, error)
}

var _ RecordImporter = (*core.Service)(nil)

// TerminalObserver is told once when a tracked job reaches a terminal status.
type TerminalObserver interface {
	JobTerminal(ctx context.Context, snap core.JobSnapshot)
}
