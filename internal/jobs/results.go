package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/metrics"
	"github.com/JonMunkholm/crmingest/internal/provider"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Result importer defaults.
const (
	DefaultPageSize      = 200
	DefaultCacheSize     = 256
	DefaultScrapedStatus = "Non contattato"
)

type pageKey struct {
	job    string
	limit  int
	offset int
}

// ResultOptions configures a ResultImporter. Zero values fall back to defaults.
type ResultOptions struct {
	PageSize      int
	CacheSize     int
	DefaultStatus string
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// ResultImporter pages through a job's results, maps each place to a record
// and hands them to the batch importer. It does not guard against concurrent
// imports of the same job; Orchestrator.ImportJob does.
type ResultImporter struct {
	provider Provider
	records  RecordImporter
	registry *Registry
	cache    *lru.Cache[pageKey, []core.PlaceResult]
	pageSize int
	status   string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewResultImporter creates a ResultImporter. Pages of completed jobs are
// cached, since their results no longer change.
func NewResultImporter(p Provider, records RecordImporter, registry *Registry, opts ResultOptions) (*ResultImporter, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.DefaultStatus == "" {
		opts.DefaultStatus = DefaultScrapedStatus
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}

	cache, err := lru.New[pageKey, []core.PlaceResult](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("result page cache: %w", err)
	}

	return &ResultImporter{
		provider: p,
		records:  records,
		registry: registry,
		cache:    cache,
		pageSize: opts.PageSize,
		status:   opts.DefaultStatus,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "results"),
	}, nil
}

// FetchPage returns one page of a job's results.
func (ri *ResultImporter) FetchPage(ctx context.Context, id string, limit, offset int) ([]core.PlaceResult, error) {
	if limit <= 0 {
		limit = ri.pageSize
	}
	if offset < 0 {
		offset = 0
	}
	key := pageKey{job: id, limit: limit, offset: offset}

	if page, ok := ri.cache.Get(key); ok {
		ri.metrics.CacheLookup(true)
		return slices.Clone(page), nil
	}
	ri.metrics.CacheLookup(false)

	page, err := ri.provider.ListPlaces(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch results of job %s: %w", id, err)
	}
	ri.registry.RecordPage(id, offset, len(page))

	if snap, ok := ri.registry.Snapshot(id); ok && snap.Status == core.JobCompleted {
		ri.cache.Add(key, slices.Clone(page))
	}
	return page, nil
}

// ImportResults imports every result of a completed job. The job's status is
// taken from the registry, or fetched once if unknown.
func (ri *ResultImporter) ImportResults(ctx context.Context, id string) (ImportSummary, error) {
	if err := ri.ensureCompleted(ctx, id); err != nil {
		return ImportSummary{}, err
	}

	total, err := ri.provider.CountPlaces(ctx, id)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("count results of job %s: %w", id, err)
	}

	// The provider may cap the page size below ours, so advance by what
	// actually arrived and stop at the announced total.
	places := make([]core.PlaceResult, 0, total)
	for len(places) < total {
		page, err := ri.FetchPage(ctx, id, ri.pageSize, len(places))
		if err != nil {
			return ImportSummary{}, err
		}
		if len(page) == 0 {
			break
		}
		places = append(places, page...)
	}
	if len(places) < total {
		return ImportSummary{}, &provider.Error{
			Kind: provider.KindBadResponse,
			Op:   "GET /v1/jobs/" + id + "/places",
			Err:  fmt.Errorf("received %d of %d results", len(places), total),
		}
	}
	places = places[:total]

	recs := make([]core.Record, len(places))
	for i, p := range places {
		recs[i] = core.PlaceToRecord(p, ri.status)
	}

	outcome, err := ri.records.ImportRecords(ctx, core.SourceScrape, id, recs, nil)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("import results of job %s: %w", id, err)
	}

	summary := ImportSummary{
		JobID:      id,
		RunID:      outcome.Run.ID,
		Inserted:   outcome.Result.Inserted,
		Failed:     outcome.Result.Failed,
		Total:      total,
		Errors:     outcome.Result.Errors,
		FinishedAt: time.Now(),
	}
	ri.logger.Info("job results imported",
		"job_id", id,
		"total", summary.Total,
		"inserted", summary.Inserted,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (ri *ResultImporter) ensureCompleted(ctx context.Context, id string) error {
	snap, ok := ri.registry.Snapshot(id)
	if !ok || !snap.Status.Terminal() {
		fresh, err := ri.provider.GetJob(ctx, id)
		if err != nil {
			return fmt.Errorf("check job %s: %w", id, err)
		}
		ri.registry.Observe(fresh)
		snap = fresh
	}
	if snap.Status != core.JobCompleted {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotCompleted, id, snap.Status)
	}
	return nil
}

// Forget drops cached pages of id.
func (ri *ResultImporter) Forget(id string) {
	for _, k := range ri.cache.Keys() {
		if k.job == id {
			ri.cache.Remove(k)
		}
	}
}
