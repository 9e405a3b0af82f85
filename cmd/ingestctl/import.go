package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmingest/internal/core"
)

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print the CSV import template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), core.TemplateCSV())
			return err
		},
	}
}

type previewOptions struct {
	delimiter string
	rows      int
}

func newPreviewCmd() *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Show how a CSV file maps onto client records without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.delimiter, "delimiter", "auto", "Field separator, or auto to detect it")
	cmd.Flags().IntVar(&opts.rows, "rows", 10, "Candidate rows to print")
	return cmd
}

func runPreview(w io.Writer, path string, opts previewOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return withCode(exitUsage, err)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return core.ErrEmptyFile
	}

	delim, err := parseDelimiter(opts.delimiter, text)
	if err != nil {
		return withCode(exitUsage, err)
	}

	parsed, err := core.Parser{Delimiter: delim}.ParseString(text)
	if err != nil {
		return err
	}
	recs, diag := core.MapParsed(parsed)
	mapping := core.ResolveColumns(parsed.Headers)

	fmt.Fprintf(w, "file:        %s\n", filepath.Base(path))
	fmt.Fprintf(w, "delimiter:   %q\n", delim)
	fmt.Fprintf(w, "rows:        %d\n", diag.RowCount)
	fmt.Fprintf(w, "candidates:  %d\n", diag.CandidateCount)
	fmt.Fprintf(w, "dropped:     %d\n", diag.DroppedRows)
	for i, h := range parsed.Headers {
		field := string(mapping.Fields[i])
		if field == "" {
			field = "(unmapped)"
		}
		fmt.Fprintf(w, "column:      %s -> %s\n", h, field)
	}
	for _, f := range diag.MissingRequiredFields {
		fmt.Fprintf(w, "missing:     %s\n", f)
	}

	if opts.rows > 0 && len(recs) > 0 {
		if len(recs) > opts.rows {
			recs = recs[:opts.rows]
		}
		fmt.Fprintln(w)
		return core.WriteRecords(w, recs, false)
	}
	return nil
}

func parseDelimiter(s, text string) (rune, error) {
	if s == "auto" {
		return core.DetectDelimiter(text), nil
	}
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidDelimiter, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV file into the client table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			defer f.Close()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			preview, err := a.Service.Preview(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			outcome, err := a.Service.Confirm(ctx, preview.ImportID)
			if err != nil {
				return err
			}

			if err := printJSON(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}
			if outcome.Result.Failed > 0 {
				return fmt.Errorf("%d of %d rows rejected", outcome.Result.Failed, outcome.Run.Candidates)
			}
			return nil
		},
	}
	return cmd
}
