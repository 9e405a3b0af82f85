package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmingest/internal/core"
)

// =============================================================================
// Helpers
// =============================================================================

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type scriptedPoller []core.JobSnapshot

func (p scriptedPoller) Poll(ctx context.Context, id string, interval time.Duration) iter.Seq[core.JobSnapshot] {
	return func(yield func(core.JobSnapshot) bool) {
		for _, s := range p {
			if !yield(s) {
				return
			}
		}
	}
}

func watchCmd(ctx context.Context, out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(out)
	return cmd
}

// =============================================================================
// Commands
// =============================================================================

func TestTemplateCmd(t *testing.T) {
	out, err := execute(t, "template")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if out != core.TemplateCSV() {
		t.Errorf("output = %q, want %q", out, core.TemplateCSV())
	}
}

func TestPreviewCmd(t *testing.T) {
	path := writeFile(t, "clienti.csv", "Nome;Città;Foo\nAcme Srl;Bari;x\n;Roma;y\n")

	out, err := execute(t, "preview", path)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	for _, want := range []string{
		"file:        clienti.csv",
		"delimiter:   ';'",
		"rows:        2",
		"candidates:  1",
		"dropped:     1",
		"column:      Nome -> name",
		"column:      Foo -> (unmapped)",
		"Acme Srl",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPreviewCmd_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  error
	}{
		{
			name:     "missing file",
			args:     []string{"preview", filepath.Join(t.TempDir(), "nope.csv")},
			wantCode: exitUsage,
		},
		{
			name:     "empty file",
			args:     []string{"preview", writeFile(t, "empty.csv", "\n  \n")},
			wantCode: exitFailure,
			wantErr:  core.ErrEmptyFile,
		},
		{
			name:     "bad delimiter",
			args:     []string{"preview", "--delimiter", "ab", writeFile(t, "a.csv", "name\nx\n")},
			wantCode: exitUsage,
			wantErr:  core.ErrInvalidDelimiter,
		},
		{
			name:     "unterminated quote",
			args:     []string{"preview", writeFile(t, "q.csv", "name\n\"Acme\n")},
			wantCode: exitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := exitCode(err); got != tt.wantCode {
				t.Errorf("exitCode = %d, want %d (%v)", got, tt.wantCode, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{",", ','},
		{";", ';'},
		{`\t`, '\t'},
		{"auto", ';'},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDelimiter(tt.in, "a;b;c\n1;2;3\n")
			if err != nil {
				t.Fatalf("parseDelimiter(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseDelimiter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCreateCmd_RequiresCoordinates(t *testing.T) {
	_, err := execute(t, "jobs", "create", "--query", "pizzeria")
	if err == nil || !strings.Contains(err.Error(), "lat") {
		t.Errorf("expected missing flag error, got %v", err)
	}
}

// =============================================================================
// Job output
// =============================================================================

func TestWatchJob(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := func(status core.JobStatus, progress int, msg string) core.JobSnapshot {
		return core.JobSnapshot{ID: "j1", Status: status, Progress: progress, Error: msg, ObservedAt: at}
	}

	tests := []struct {
		name    string
		script  scriptedPoller
		wantErr string
		lines   int
	}{
		{
			name:   "completed",
			script: scriptedPoller{snap(core.JobQueued, 0, ""), snap(core.JobRunning, 40, ""), snap(core.JobCompleted, 100, "")},
			lines:  3,
		},
		{
			name:    "failed",
			script:  scriptedPoller{snap(core.JobRunning, 10, ""), snap(core.JobFailed, 10, "quota exceeded")},
			wantErr: "quota exceeded",
			lines:   2,
		},
		{
			name:    "not found",
			script:  scriptedPoller{},
			wantErr: "job not found",
		},
		{
			name:    "ended early",
			script:  scriptedPoller{snap(core.JobRunning, 10, "")},
			wantErr: "watch ended while running",
			lines:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := watchJob(watchCmd(context.Background(), &out), tt.script, "j1", time.Millisecond)

			if tt.wantErr == "" && err != nil {
				t.Fatalf("watchJob: %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
			if got := strings.Count(out.String(), "\n"); got != tt.lines {
				t.Errorf("printed %d lines, want %d:\n%s", got, tt.lines, out.String())
			}
		})
	}
}

func TestWatchJob_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := watchJob(watchCmd(ctx, &out), scriptedPoller{}, "j1", time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestWriteJobTable(t *testing.T) {
	var out bytes.Buffer
	err := writeJobTable(&out, []core.ScrapeJob{
		{ID: "j1", Status: core.JobRunning, Progress: 40, Name: "Pizzerie Bari"},
		{ID: "j2", Status: core.JobCompleted, Progress: 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "Pizzerie Bari") || !strings.Contains(lines[2], "100%") {
		t.Errorf("unexpected table:\n%s", out.String())
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(errors.New("boom")); got != exitFailure {
		t.Errorf("plain error = %d", got)
	}
	wrapped := errors.Join(errors.New("ctx"), withCode(exitUsage, errors.New("bad flag")))
	if got := exitCode(wrapped); got != exitUsage {
		t.Errorf("wrapped usage error = %d", got)
	}
	if withCode(exitUsage, nil) != nil {
		t.Error("withCode(nil) should be nil")
	}
}

func TestResetCmd_RequiresConfirmation(t *testing.T) {
	_, err := execute(t, "reset")
	if err == nil || exitCode(err) != exitUsage {
		t.Errorf("reset without --yes: err = %v", err)
	}
}
