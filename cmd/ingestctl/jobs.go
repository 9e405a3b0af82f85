package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/JonMunkholm/crmingest/internal/provider"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Create, follow and import search jobs",
	}
	cmd.AddCommand(
		newJobsCreateCmd(),
		newJobsListCmd(),
		newJobsWatchCmd(),
		newJobsImportCmd(),
		newJobsEnrichCmd(),
	)
	return cmd
}

type createOptions struct {
	query      string
	lat        float64
	lng        float64
	radius     int
	limit      int
	sources    []string
	categories []string
	name       string
	watch      bool
}

func newJobsCreateCmd() *cobra.Command {
	var opts createOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a search job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPartialConfig()
			if err != nil {
				return err
			}
			orch, err := newJobClient(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()

			params := core.SearchParams{
				Query:      opts.query,
				RadiusM:    opts.radius,
				Limit:      opts.limit,
				Sources:    opts.sources,
				Categories: opts.categories,
				Name:       opts.name,
			}
			if cmd.Flags().Changed("lat") {
				params.Lat = &opts.lat
			}
			if cmd.Flags().Changed("lng") {
				params.Lng = &opts.lng
			}

			id, err := orch.Create(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if !opts.watch {
				return nil
			}
			return watchJob(cmd, orch, id, cfg.Provider.PollInterval)
		},
	}

	cmd.Flags().StringVar(&opts.query, "query", "", "Search query, e.g. pizzeria")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "Latitude of the search center")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "Longitude of the search center")
	cmd.Flags().IntVar(&opts.radius, "radius", 0, "Search radius in meters (provider default when 0)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum results (provider default when 0)")
	cmd.Flags().StringSliceVar(&opts.sources, "sources", nil, "Result sources, comma separated")
	cmd.Flags().StringSliceVar(&opts.categories, "categories", nil, "Category filter, comma separated")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name for the job")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Follow the job until it finishes")

	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")

	return cmd
}

func newJobsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent search jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPartialConfig()
			if err != nil {
				return err
			}
			orch, err := newJobClient(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()

			list, err := orch.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJobTable(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of jobs to list")
	return cmd
}

func writeJobTable(w io.Writer, list []core.ScrapeJob) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tNAME\tCREATED")
	for _, j := range list {
		created := ""
		if !j.CreatedAt.IsZero() {
			created = j.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\n", j.ID, j.Status, j.Progress, j.Name, created)
	}
	return tw.Flush()
}

func newJobsWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch ID",
		Short: "Follow a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPartialConfig()
			if err != nil {
				return err
			}
			orch, err := newJobClient(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()

			if interval <= 0 {
				interval = cfg.Provider.PollInterval
			}
			return watchJob(cmd, orch, args[0], interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (config value when 0)")
	return cmd
}

type poller interface {
	Poll(ctx context.Context, id string, interval time.Duration) iter.Seq[core.JobSnapshot]
}

// watchJob prints every observed status and fails when the job fails or the
// watch ends before a terminal status.
func watchJob(cmd *cobra.Command, p poller, id string, interval time.Duration) error {
	w := cmd.OutOrStdout()

	var last core.JobSnapshot
	for snap := range p.Poll(cmd.Context(), id, interval) {
		fmt.Fprintf(w, "%s  %-9s %3d%%", snap.ObservedAt.Local().Format(time.TimeOnly), snap.Status, snap.Progress)
		if snap.Error != "" {
			fmt.Fprintf(w, "  %s", snap.Error)
		}
		fmt.Fprintln(w)
		last = snap
	}

	switch {
	case last.Status == core.JobCompleted:
		return nil
	case last.Status == core.JobFailed:
		return fmt.Errorf("job %s failed: %s", id, strings.TrimSpace(last.Error))
	case cmd.Context().Err() != nil:
		return cmd.Context().Err()
	case last.Status == "":
		return fmt.Errorf("job %s: job not found", id)
	default:
		return fmt.Errorf("job %s: watch ended while %s", id, last.Status)
	}
}

func newJobsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import ID",
		Short: "Import the results of a completed job as client records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Jobs.ImportJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}

func newJobsEnrichCmd() *cobra.Command {
	var req provider.EnrichRequest

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Look up contact emails for a website or domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPartialConfig()
			if err != nil {
				return err
			}
			orch, err := newJobClient(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()

			emails, err := orch.EnrichContacts(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, e := range emails {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Website, "website", "", "Website URL to crawl")
	cmd.Flags().StringVar(&req.Domain, "domain", "", "Domain to search")
	cmd.Flags().StringSliceVar(&req.Emails, "emails", nil, "Known emails, comma separated")
	return cmd
}
