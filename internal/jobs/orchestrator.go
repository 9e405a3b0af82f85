package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/metrics"
	"github.com/JonMunkholm/crmingest/internal/provider"
)

// Search defaults applied by Create.
const (
	DefaultRadiusM      = 1000
	DefaultLimit        = 50
	DefaultPollInterval = 1500 * time.Millisecond
)

// DefaultSources is used when a search names no sources.
var DefaultSources = []string{"google"}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Observers    []TerminalObserver
}

// Orchestrator submits, polls and lists provider jobs and owns the Registry.
type Orchestrator struct {
	provider     Provider
	registry     *Registry
	importer     *ResultImporter
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	observers    []TerminalObserver

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. importer may be nil when results
// are never imported.
func NewOrchestrator(p Provider, registry *Registry, importer *ResultImporter, opts Options) *Orchestrator {
	if registry == nil {
		registry = NewRegistry()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		provider:     p,
		registry:     registry,
		importer:     importer,
		pollInterval: opts.PollInterval,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "jobs"),
		observers:    opts.Observers,
		base:         base,
		cancel:       cancel,
	}
}

// Registry returns the job registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// NormalizeSearch validates params and fills in defaults.
func NormalizeSearch(params core.SearchParams) (core.SearchParams, error) {
	params.Query = strings.TrimSpace(params.Query)
	switch {
	case params.Query == "":
		return params, fmt.Errorf("%w: query is required", ErrInvalidSearch)
	case params.Lat == nil || params.Lng == nil:
		return params, fmt.Errorf("%w: lat and lng are required", ErrInvalidSearch)
	case *params.Lat < -90 || *params.Lat > 90:
		return params, fmt.Errorf("%w: lat must be between -90 and 90", ErrInvalidSearch)
	case *params.Lng < -180 || *params.Lng > 180:
		return params, fmt.Errorf("%w: lng must be between -180 and 180", ErrInvalidSearch)
	}

	if params.RadiusM <= 0 {
		params.RadiusM = DefaultRadiusM
	}
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if len(params.Sources) == 0 {
		params.Sources = append([]string(nil), DefaultSources...)
	}
	params.Name = strings.TrimSpace(params.Name)
	return params, nil
}

// Create submits a search and tracks the returned job. Invalid requests are
// rejected with ErrInvalidSearch without contacting the provider.
func (o *Orchestrator) Create(ctx context.Context, params core.SearchParams) (string, error) {
	params, err := NormalizeSearch(params)
	if err != nil {
		return "", err
	}

	id, err := o.provider.CreateJob(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	o.registry.Track(id)

	o.logger.Info("search job created",
		"job_id", id,
		"query", params.Query,
		"radius_m", params.RadiusM,
		"limit", params.Limit,
	)
	return id, nil
}

// Get returns the current status of a job, fetched from the provider.
func (o *Orchestrator) Get(ctx context.Context, id string) (core.JobSnapshot, error) {
	snap, err := o.provider.GetJob(ctx, id)
	if err != nil {
		return core.JobSnapshot{}, err
	}
	o.observe(ctx, snap)
	return snap, nil
}

// List returns the provider's most recent jobs and records their status in
// the registry. It does not poll.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]core.ScrapeJob, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	jobs, err := o.provider.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	now := time.Now()
	for _, j := range jobs {
		o.observe(ctx, core.JobSnapshot{
			ID:         j.ID,
			Name:       j.Name,
			Status:     j.Status,
			Progress:   j.Progress,
			Error:      j.Error,
			ObservedAt: now,
		})
	}
	return jobs, nil
}

// observe records snap and notifies observers on a terminal transition.
func (o *Orchestrator) observe(ctx context.Context, snap core.JobSnapshot) {
	if !o.registry.Observe(snap) {
		return
	}

	logger := o.logger.With("job_id", snap.ID, "status", snap.Status)
	if snap.Status == core.JobFailed {
		logger.Warn("search job failed", "error", snap.Error)
	} else {
		logger.Info("search job completed")
	}

	o.metrics.ObserveTerminal(snap.Status)
	for _, obs := range o.observers {
		obs.JobTerminal(ctx, snap)
	}
}

// Count returns the number of results stored for a job.
func (o *Orchestrator) Count(ctx context.Context, id string) (int, error) {
	return o.provider.CountPlaces(ctx, id)
}

// ExportURL returns the provider download URL of a job's results.
func (o *Orchestrator) ExportURL(id, format string) (string, error) {
	return o.provider.ExportURL(id, format)
}

// EnrichContacts looks up contact emails for a business.
func (o *Orchestrator) EnrichContacts(ctx context.Context, req provider.EnrichRequest) ([]string, error) {
	req.Website = strings.TrimSpace(req.Website)
	req.Domain = strings.TrimSpace(req.Domain)
	if req.Website == "" && req.Domain == "" && len(req.Emails) == 0 {
		return nil, ErrInvalidEnrich
	}
	return o.provider.EnrichContacts(ctx, req)
}

// Places returns one page of a job's results.
func (o *Orchestrator) Places(ctx context.Context, id string, limit, offset int) ([]core.PlaceResult, error) {
	if o.importer == nil {
		return o.provider.ListPlaces(ctx, id, limit, offset)
	}
	return o.importer.FetchPage(ctx, id, limit, offset)
}

// ImportJob imports a completed job's results. A second import of the same
// job while one is running fails with ErrImportInFlight.
func (o *Orchestrator) ImportJob(ctx context.Context, id string) (ImportSummary, error) {
	if o.importer == nil {
		return ImportSummary{}, fmt.Errorf("import job %s: no result importer configured", id)
	}
	if err := o.registry.BeginImport(id); err != nil {
		return ImportSummary{}, err
	}

	summary, err := o.importer.ImportResults(ctx, id)
	if err != nil {
		o.registry.EndImport(id, nil)
		return ImportSummary{}, err
	}
	o.registry.EndImport(id, &summary)
	return summary, nil
}

// Forget stops watching a job and drops its registry entry and cached pages.
func (o *Orchestrator) Forget(id string) bool {
	ok := o.registry.Forget(id)
	if o.importer != nil {
		o.importer.Forget(id)
	}
	o.metrics.SetWatched(o.registry.Watching())
	return ok
}

// Close cancels every watch and waits for the poll loops to exit.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
	o.metrics.SetWatched(o.registry.Watching())
}
