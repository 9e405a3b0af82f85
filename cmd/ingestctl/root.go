package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmingest/internal/app"
	"github.com/JonMunkholm/crmingest/internal/config"
	"github.com/JonMunkholm/crmingest/internal/jobs"
	"github.com/JonMunkholm/crmingest/internal/logging"
	"github.com/JonMunkholm/crmingest/internal/provider"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "ingestctl",
		Short:         "Import client records from CSV files and search jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configFile != "" {
				if err := os.Setenv(config.FileEnv, opts.configFile); err != nil {
					return err
				}
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides $CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(
		newTemplateCmd(),
		newPreviewCmd(),
		newImportCmd(),
		newJobsCmd(),
		newMigrateCmd(),
		newResetCmd(),
	)
	return cmd
}

// loadConfig loads the full configuration, database included.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return cfg, nil
}

// loadPartialConfig loads configuration for commands that never touch the
// database.
func loadPartialConfig() (*config.Config, error) {
	cfg, err := config.LoadPartial()
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return cfg, nil
}

// openApp connects everything, database included. Callers must Close it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, *cfg)
}

// newJobClient builds an orchestrator that talks to the provider only.
// Result imports are unavailable through it.
func newJobClient(cfg *config.Config) (*jobs.Orchestrator, error) {
	client, err := provider.New(app.ProviderOptions(cfg.Provider, nil))
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return jobs.NewOrchestrator(client, nil, nil, jobs.Options{
		PollInterval: cfg.Provider.PollInterval,
	}), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
