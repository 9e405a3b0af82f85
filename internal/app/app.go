// Package app wires configuration into the running components shared by the
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/crmingest/internal/config"
	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/jobs"
	"github.com/JonMunkholm/crmingest/internal/metrics"
	"github.com/JonMunkholm/crmingest/internal/notify"
	"github.com/JonMunkholm/crmingest/internal/provider"
	"github.com/JonMunkholm/crmingest/internal/store/postgres"
)

// App holds the wired components. Events is nil when no broker is configured.
type App struct {
	Config   config.Config
	DB       *postgres.DB
	Repo     *postgres.Repository
	Service  *core.Service
	Provider *provider.Client
	Jobs     *jobs.Orchestrator
	Metrics  *metrics.Metrics
	Events   *notify.Publisher
}

// New connects to the database, applies migrations when enabled and builds
// the import service and job orchestrator.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	slog.Info("connected to database", "name", db.Name(ctx))

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	a.Repo = postgres.NewRepository(db.Pool)
	a.Service = core.NewService(a.Repo, ServiceConfig(cfg.Import))
	a.Service.AddObserver(a.Metrics)

	if cfg.Events.URL != "" {
		pub, err := notify.Dial(cfg.Events.URL, cfg.Events.Exchange)
		if err != nil {
			slog.Warn("event publishing disabled", "error", err)
		} else {
			a.Events = pub
			a.Service.AddObserver(pub)
		}
	}

	if err := a.buildJobs(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildJobs() error {
	cfg := a.Config.Provider

	client, err := provider.New(ProviderOptions(cfg, a.Metrics))
	if err != nil {
		return fmt.Errorf("provider client: %w", err)
	}
	a.Provider = client

	registry := jobs.NewRegistry()
	results, err := jobs.NewResultImporter(client, a.Service, registry, jobs.ResultOptions{
		PageSize:      cfg.PageSize,
		CacheSize:     cfg.CacheSize,
		DefaultStatus: cfg.DefaultStatus,
		Metrics:       a.Metrics,
	})
	if err != nil {
		return err
	}

	var observers []jobs.TerminalObserver
	if a.Events != nil {
		observers = append(observers, a.Events)
	}
	a.Jobs = jobs.NewOrchestrator(client, registry, results, jobs.Options{
		PollInterval: cfg.PollInterval,
		Metrics:      a.Metrics,
		Observers:    observers,
	})
	return nil
}

// ServiceConfig maps import settings onto the service.
func ServiceConfig(cfg config.ImportConfig) core.ServiceConfig {
	return core.ServiceConfig{
		SessionTTL:    cfg.SessionTTL,
		PreviewRows:   cfg.PreviewRows,
		Delimiter:     cfg.Delimiter,
		ImportTimeout: cfg.Timeout,
		MaxConcurrent: cfg.MaxConcurrent,
		MaxWait:       cfg.MaxWaitTime,
	}
}

// ProviderOptions maps provider settings onto the HTTP client. Retries are
// counted in m.
func ProviderOptions(cfg config.ProviderConfig, m *metrics.Metrics) provider.Options {
	return provider.Options{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		OnRetry: func(op string, attempt int, err error) {
			m.IncRetry(op)
		},
	}
}

// Close stops poll loops and releases connections.
func (a *App) Close() {
	if a.Jobs != nil {
		a.Jobs.Close()
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			slog.Warn("close event publisher", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
