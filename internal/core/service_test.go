package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type runRecorder struct {
	memStore
	mu   sync.Mutex
	runs []ImportRun
}

func (r *runRecorder) RecordRun(_ context.Context, run ImportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *runRecorder) ListRuns(_ context.Context, limit int) ([]ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ImportRun, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}

type observerFunc func(ImportRun)

func (f observerFunc) ImportFinished(_ context.Context, run ImportRun) { f(run) }

const sampleCSV = "Nome,Città,Email,Fatturato\n" +
	"Acme Srl,Bari,info@acme.it,100\n" +
	",Lecce,,\n" +
	"Beta Spa,Taranto,,200\n"

func TestService_PreviewConfirm(t *testing.T) {
	store := &runRecorder{}
	svc := NewService(store, ServiceConfig{PreviewRows: 1})

	var observed []ImportRun
	svc.AddObserver(observerFunc(func(run ImportRun) { observed = append(observed, run) }))

	preview, err := svc.Preview(context.Background(), "clienti.csv", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.Diagnostics.CandidateCount != 2 {
		t.Errorf("CandidateCount = %d, want 2", preview.Diagnostics.CandidateCount)
	}
	if len(preview.Sample) != 1 {
		t.Errorf("len(Sample) = %d, want 1", len(preview.Sample))
	}
	if got := preview.Diagnostics.UnmappedHeaders; len(got) != 1 || got[0] != "Fatturato" {
		t.Errorf("UnmappedHeaders = %v, want [Fatturato]", got)
	}
	if preview.Columns[1].Field != FieldCity || preview.Columns[3].Field != "" {
		t.Errorf("Columns = %+v", preview.Columns)
	}
	if len(store.records) != 0 {
		t.Fatal("preview must not persist anything")
	}

	outcome, err := svc.Confirm(context.Background(), preview.ImportID)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.Result.Inserted != 2 || outcome.Result.Failed != 0 {
		t.Errorf("Result = %+v, want 2 inserted", outcome.Result)
	}
	if outcome.Run.Source != SourceCSV || outcome.Run.Reference != "clienti.csv" {
		t.Errorf("Run = %+v", outcome.Run)
	}
	if len(store.runs) != 1 || len(observed) != 1 {
		t.Errorf("runs recorded = %d, observed = %d, want 1 and 1", len(store.runs), len(observed))
	}

	if _, err := svc.Confirm(context.Background(), preview.ImportID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Confirm() error = %v, want ErrSessionNotFound", err)
	}

	history, err := svc.History(context.Background(), 10)
	if err != nil || len(history) != 1 {
		t.Errorf("History() = %v, %v", history, err)
	}
}

func TestService_PreviewErrors(t *testing.T) {
	svc := NewService(&memStore{}, ServiceConfig{})

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyFile},
		{"only BOM and whitespace", "\xef\xbb\xbf \n\n", ErrEmptyFile},
		{"unterminated quote", "Nome\n\"Acme\n", ErrUnterminatedQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Preview(context.Background(), "x.csv", strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("Preview() error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := svc.PendingSessions(); n != 0 {
		t.Errorf("PendingSessions() = %d after failures, want 0", n)
	}
}

func TestService_AutoDelimiter(t *testing.T) {
	svc := NewService(&memStore{}, ServiceConfig{Delimiter: "auto"})

	preview, err := svc.Preview(context.Background(), "x.csv", strings.NewReader("Nome;Città\nAcme;Bari\n"))
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if preview.Delimiter != ";" || preview.Diagnostics.CandidateCount != 1 {
		t.Errorf("preview = %+v", preview)
	}
}

func TestService_DiscardAndExpiry(t *testing.T) {
	svc := NewService(&memStore{}, ServiceConfig{SessionTTL: time.Minute})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	p1, _ := svc.Preview(context.Background(), "a.csv", strings.NewReader("Nome\nA\n"))
	p2, _ := svc.Preview(context.Background(), "b.csv", strings.NewReader("Nome\nB\n"))

	if err := svc.Discard(p1.ImportID); err != nil {
		t.Errorf("Discard() error = %v", err)
	}
	if err := svc.Discard(p1.ImportID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Discard() error = %v, want ErrSessionNotFound", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Confirm(context.Background(), p2.ImportID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Confirm() on expired session error = %v, want ErrSessionNotFound", err)
	}

	p3, _ := svc.Preview(context.Background(), "c.csv", strings.NewReader("Nome\nC\n"))
	now = now.Add(2 * time.Minute)
	if removed := svc.SweepSessions(); removed != 1 {
		t.Errorf("SweepSessions() = %d, want 1", removed)
	}
	if _, err := svc.Confirm(context.Background(), p3.ImportID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Confirm() after sweep error = %v", err)
	}
}

func TestService_ExportRecords(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, ServiceConfig{})

	if _, err := svc.ImportRecords(context.Background(), SourceScrape, "job-1", []Record{{Name: "Acme, Srl"}}, nil); err != nil {
		t.Fatalf("ImportRecords() error = %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportRecords(context.Background(), &buf); err != nil {
		t.Fatalf("ExportRecords() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), TemplateCSV()) || !strings.Contains(buf.String(), "1,\"Acme, Srl\",") {
		t.Errorf("export = %q", buf.String())
	}
}

type createOnly struct{}

func (createOnly) CreateRecord(_ context.Context, rec Record) (Record, error) { return rec, nil }

func TestService_ExportUnsupported(t *testing.T) {
	svc := NewService(createOnly{}, ServiceConfig{})
	if err := svc.ExportRecords(context.Background(), &bytes.Buffer{}); !errors.Is(err, ErrExportUnsupported) {
		t.Errorf("ExportRecords() error = %v, want ErrExportUnsupported", err)
	}
	runs, err := svc.History(context.Background(), 5)
	if err != nil || len(runs) != 0 {
		t.Errorf("History() without RunStore = %v, %v", runs, err)
	}
}
