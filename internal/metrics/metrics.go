// Package metrics holds the Prometheus collectors of the ingestion service.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	PollsTotal        prometheus.Counter
	PollErrorsTotal   *prometheus.CounterVec
	JobsTerminalTotal *prometheus.CounterVec
	ProviderRetries   *prometheus.CounterVec
	ImportsTotal      *prometheus.CounterVec
	RecordsImported   *prometheus.CounterVec
	RecordsFailed     *prometheus.CounterVec
	ImportDuration    *prometheus.HistogramVec
	WatchedJobs       prometheus.Gauge
	PageCacheLookups  *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crmingest_job_polls_total",
			Help: "Total job status fetches issued by poll loops.",
		}),
		PollErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_job_poll_errors_total",
			Help: "Job status fetches that failed, by error type.",
		}, []string{"error_type"}),
		JobsTerminalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_jobs_terminal_total",
			Help: "Jobs observed reaching a terminal status.",
		}, []string{"status"}),
		ProviderRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_provider_retries_total",
			Help: "Provider requests repeated after a transient failure.",
		}, []string{"op"}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_imports_total",
			Help: "Finished import runs by source.",
		}, []string{"source"}),
		RecordsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_records_inserted_total",
			Help: "Records persisted by import runs.",
		}, []string{"source"}),
		RecordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_records_failed_total",
			Help: "Candidates rejected by import runs.",
		}, []string{"source"}),
		ImportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmingest_import_duration_seconds",
			Help:    "Wall time of import runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		WatchedJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crmingest_watched_jobs",
			Help: "Jobs with an active background poll loop.",
		}),
		PageCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmingest_result_page_cache_lookups_total",
			Help: "Result page cache lookups by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.PollsTotal, m.PollErrorsTotal, m.JobsTerminalTotal, m.ProviderRetries,
		m.ImportsTotal, m.RecordsImported, m.RecordsFailed, m.ImportDuration,
		m.WatchedJobs, m.PageCacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// IncPoll counts one status fetch.
func (m *Metrics) IncPoll() {
	if m == nil {
		return
	}
	m.PollsTotal.Inc()
}

// IncPollError counts a failed status fetch.
func (m *Metrics) IncPollError(errorType string) {
	if m == nil {
		return
	}
	m.PollErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveTerminal counts a job reaching a terminal status.
func (m *Metrics) ObserveTerminal(status core.JobStatus) {
	if m == nil {
		return
	}
	m.JobsTerminalTotal.WithLabelValues(string(status)).Inc()
}

// IncRetry counts a repeated provider request.
func (m *Metrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(op).Inc()
}

// SetWatched sets the number of watched jobs.
func (m *Metrics) SetWatched(n int) {
	if m == nil {
		return
	}
	m.WatchedJobs.Set(float64(n))
}

// CacheLookup counts a result page cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.PageCacheLookups.WithLabelValues(outcome).Inc()
}

// ImportFinished records a finished import run.
func (m *Metrics) ImportFinished(_ context.Context, run core.ImportRun) {
	if m == nil {
		return
	}
	source := string(run.Source)
	m.ImportsTotal.WithLabelValues(source).Inc()
	m.RecordsImported.WithLabelValues(source).Add(float64(run.Inserted))
	m.RecordsFailed.WithLabelValues(source).Add(float64(run.Failed))
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		m.ImportDuration.WithLabelValues(source).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}

var _ core.ImportObserver = (*Metrics)(nil)
