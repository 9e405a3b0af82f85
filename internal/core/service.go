package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for unknown, expired or already
	// confirmed import sessions.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrEmptyFile is returned when the upload has no header row.
	ErrEmptyFile = errors.New("empty file: no header row")

	// ErrNoFile is returned when an upload carries no file part.
	ErrNoFile = errors.New("no file provided")

	// ErrExportUnsupported is returned when the store cannot list records.
	ErrExportUnsupported = errors.New("record export not supported by store")
)

// ImportRun is the persisted summary of one confirmed import.
type ImportRun struct {
	ID         string       `json:"id"`
	Source     ImportSource `json:"source"`
	Reference  string       `json:"reference"` // file name or job id
	Candidates int          `json:"candidates"`
	Inserted   int          `json:"inserted"`
	Failed     int          `json:"failed"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// RunStore records import history. Optional.
type RunStore interface {
	RecordRun(ctx context.Context, run ImportRun) error
	ListRuns(ctx context.Context, limit int) ([]ImportRun, error)
}

// RecordLister streams stored records in id order. Optional; needed for export.
type RecordLister interface {
	ListRecords(ctx context.Context, fn func(Record) error) error
}

// ImportObserver is notified after every import run, successful or not.
type ImportObserver interface {
	ImportFinished(ctx context.Context, run ImportRun)
}

// ServiceConfig tunes the import service. Zero values fall back to defaults.
type ServiceConfig struct {
	SessionTTL    time.Duration // how long a preview can wait for confirmation
	PreviewRows   int           // candidates included in a preview
	Delimiter     string        // "auto" or a single character
	ImportTimeout time.Duration // upper bound for one batch import
	MaxConcurrent int
	MaxWait       time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = 20
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.ImportTimeout <= 0 {
		c.ImportTimeout = 10 * time.Minute
	}
	return c
}

// Service runs the CSV import flow: preview, operator confirmation, batch
// import. It is also the entry point used by job result imports so that all
// imports share one limiter and one history.
type Service struct {
	store     RecordStore
	runs      RunStore
	limiter   *ImportLimiter
	cfg       ServiceConfig
	observers []ImportObserver
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*importSession
}

type importSession struct {
	id          string
	fileName    string
	candidates  []Record
	diagnostics ImportDiagnostics
	createdAt   time.Time
}

// NewService creates a Service over store. If store also implements RunStore
// every import is recorded in history.
func NewService(store RecordStore, cfg ServiceConfig) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		store:    store,
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*importSession),
	}
	if rs, ok := store.(RunStore); ok {
		s.runs = rs
	}
	return s
}

// AddObserver registers an observer for finished imports.
func (s *Service) AddObserver(o ImportObserver) {
	s.observers = append(s.observers, o)
}

// ColumnPreview shows how one header was resolved.
type ColumnPreview struct {
	Header string `json:"header"`
	Field  Field  `json:"field,omitempty"`
}

// PreviewResult is shown to the operator before confirming an import.
type PreviewResult struct {
	ImportID    string            `json:"import_id"`
	FileName    string            `json:"file_name"`
	Delimiter   string            `json:"delimiter"`
	Columns     []ColumnPreview   `json:"columns"`
	Diagnostics ImportDiagnostics `json:"diagnostics"`
	Sample      []Record          `json:"sample"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Preview parses and maps an uploaded file and keeps the candidates until
// Confirm or Discard. Parse errors are returned as *ParseError and nothing
// is kept.
func (s *Service) Preview(ctx context.Context, fileName string, r io.Reader) (*PreviewResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	text := string(data)
	delim, err := s.delimiterFor(text)
	if err != nil {
		return nil, err
	}

	parsed, err := Parser{Delimiter: delim}.ParseString(text)
	if err != nil {
		return nil, err
	}
	if len(parsed.Headers) == 0 {
		return nil, ErrEmptyFile
	}

	candidates, diag := MapParsed(parsed)
	mapping := ResolveColumns(parsed.Headers)

	sess := &importSession{
		id:          uuid.New().String(),
		fileName:    fileName,
		candidates:  candidates,
		diagnostics: diag,
		createdAt:   s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	cols := make([]ColumnPreview, len(parsed.Headers))
	for i, h := range parsed.Headers {
		cols[i] = ColumnPreview{Header: h, Field: mapping.Fields[i]}
	}
	sample := candidates
	if len(sample) > s.cfg.PreviewRows {
		sample = sample[:s.cfg.PreviewRows]
	}

	slog.Info("import preview ready",
		"import_id", sess.id,
		"file", fileName,
		"rows", diag.RowCount,
		"candidates", diag.CandidateCount,
		"unmapped", len(diag.UnmappedHeaders),
	)

	return &PreviewResult{
		ImportID:    sess.id,
		FileName:    fileName,
		Delimiter:   string(delim),
		Columns:     cols,
		Diagnostics: diag,
		Sample:      sample,
		ExpiresAt:   sess.createdAt.Add(s.cfg.SessionTTL),
	}, nil
}

func (s *Service) delimiterFor(text string) (rune, error) {
	if s.cfg.Delimiter == "auto" {
		return DetectDelimiter(text), nil
	}
	if utf8.RuneCountInString(s.cfg.Delimiter) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelimiter, s.cfg.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(s.cfg.Delimiter)
	return r, nil
}

// ImportOutcome is the result of a confirmed import.
type ImportOutcome struct {
	Run    ImportRun   `json:"run"`
	Result BatchResult `json:"result"`
}

// Confirm imports the candidates of a previewed file. The session is consumed
// even if the import fails, so a confirmation is never applied twice.
func (s *Service) Confirm(ctx context.Context, importID string) (*ImportOutcome, error) {
	s.mu.Lock()
	sess, ok := s.sessions[importID]
	if ok {
		delete(s.sessions, importID)
	}
	s.mu.Unlock()

	if !ok || s.expired(sess) {
		return nil, ErrSessionNotFound
	}

	return s.ImportRecords(ctx, SourceCSV, sess.fileName, sess.candidates, nil)
}

// Discard drops a previewed import.
func (s *Service) Discard(importID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[importID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, importID)
	return nil
}

// ImportRecords runs a batch import under the shared limiter and records the
// run. progress may be nil.
func (s *Service) ImportRecords(ctx context.Context, source ImportSource, reference string, recs []Record, progress ProgressFunc) (*ImportOutcome, error) {
	run := ImportRun{
		ID:         uuid.New().String(),
		Source:     source,
		Reference:  reference,
		Candidates: len(recs),
		StartedAt:  s.now(),
	}
	logger := slog.With("run_id", run.ID, "source", source, "reference", reference)

	var result BatchResult
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
		defer cancel()

		importer := NewBatchImporter(s.store).WithLogger(logger)
		if progress != nil {
			importer = importer.WithProgress(progress)
		}
		result = importer.Import(ctx, recs)
		return nil
	})
	if err != nil {
		logger.Warn("import not started", "error", err)
		return nil, err
	}

	run.Inserted = result.Inserted
	run.Failed = result.Failed
	run.FinishedAt = s.now()

	if s.runs != nil {
		if err := s.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("failed to record import run", "error", err)
		}
	}
	for _, o := range s.observers {
		o.ImportFinished(ctx, run)
	}

	return &ImportOutcome{Run: run, Result: result}, nil
}

// History returns the most recent import runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]ImportRun, error) {
	if s.runs == nil {
		return []ImportRun{}, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

// Template returns the CSV import template.
func (s *Service) Template() string {
	return TemplateCSV()
}

// ExportRecords streams every stored record as CSV in template layout.
func (s *Service) ExportRecords(ctx context.Context, w io.Writer) error {
	lister, ok := s.store.(RecordLister)
	if !ok {
		return ErrExportUnsupported
	}
	rw := NewRecordWriter(w, true)
	if err := lister.ListRecords(ctx, rw.Write); err != nil {
		return fmt.Errorf("export records: %w", err)
	}
	return rw.Flush()
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// PendingSessions returns the number of previews awaiting confirmation.
func (s *Service) PendingSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) expired(sess *importSession) bool {
	return s.now().Sub(sess.createdAt) > s.cfg.SessionTTL
}
