package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Record is the canonical client record: the unit of import and export.
// Optional fields are nil when absent; JSON names are the canonical field names.
type Record struct {
	ID        int64     `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`

	Name          string   `json:"name"`
	Site          *string  `json:"site"`
	City          *string  `json:"city"`
	Category      *string  `json:"category"`
	Email1        *string  `json:"email_1"`
	Email2        *string  `json:"email_2"`
	Email3        *string  `json:"email_3"`
	Phone1        *string  `json:"phone_1"`
	Phone2        *string  `json:"phone_2"`
	Phone3        *string  `json:"phone_3"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Assign        *string  `json:"assign"`
	ContactMethod *string  `json:"contact_method"`
	DataStart     *string  `json:"data_start"`
	DataFollowUp1 *string  `json:"data_follow_up_1"`
	DataFollowUp2 *string  `json:"data_follow_up_2"`
	Status        *string  `json:"status"`
	Note          *string  `json:"note"`
}

// RecordStore is the persistence boundary consumed by the batch importer.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec Record) (Record, error)
}

// BatchStore is implemented by stores that can insert a whole batch in one
// round trip. The returned slice has one entry per record (nil on success).
// A non-nil error means the batch as a whole could not be committed.
type BatchStore interface {
	RecordStore
	BatchInsert(ctx context.Context, recs []Record) ([]error, error)
}

// ImportDiagnostics is advisory information shown before an import is confirmed.
type ImportDiagnostics struct {
	UnmappedHeaders       []string `json:"unmapped_headers"`
	MissingRequiredFields []Field  `json:"missing_required_fields"`
	CandidateCount        int      `json:"candidate_count"`
	RowCount              int      `json:"row_count"`
	DroppedRows           int      `json:"dropped_rows"`
}

// HasWarnings reports whether the operator should review the mapping.
func (d ImportDiagnostics) HasWarnings() bool {
	return len(d.UnmappedHeaders) > 0 || len(d.MissingRequiredFields) > 0
}

// RowError describes one rejected candidate in a batch.
type RowError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// BatchResult is the outcome of a batch import. Inserted+Failed always
// equals the number of submitted candidates.
type BatchResult struct {
	Inserted int        `json:"inserted"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors"`
}

// JobStatus is the provider-reported state of a search job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions can follow.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SearchParams is a search request submitted to the job provider.
type SearchParams struct {
	Query      string   `json:"query"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	RadiusM    int      `json:"radius_m"`
	Sources    []string `json:"sources"`
	Limit      int      `json:"limit"`
	Name       string   `json:"name,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// JobSnapshot is one observation of a job's status.
type JobSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// ScrapeJob is a job as listed by the provider.
type ScrapeJob struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Status    JobStatus    `json:"status"`
	Progress  int          `json:"progress"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Params    SearchParams `json:"params"`
}

// PlaceResult is a single provider-sourced result of a search job.
type PlaceResult struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        *string  `json:"phone"`
	Website      *string  `json:"website"`
	Rating       *float64 `json:"rating"`
	ReviewsCount *int     `json:"reviewsCount"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Categories   []string `json:"categories"`
}

// ImportSource identifies where an import run came from.
type ImportSource string

const (
	SourceCSV    ImportSource = "csv"
	SourceScrape ImportSource = "scrape"
)
