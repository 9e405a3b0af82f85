package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/crmingest/internal/core"
)

// Conn is satisfied by *pgxpool.Pool.
type Conn interface {
	core.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository stores records in the clienti table and import runs in
// import_runs.
type Repository struct {
	conn Conn
}

var (
	_ core.BatchStore   = (*Repository)(nil)
	_ core.RecordLister = (*Repository)(nil)
	_ core.RunStore     = (*Repository)(nil)
)

// NewRepository creates a Repository over conn.
func NewRepository(conn Conn) *Repository {
	return &Repository{conn: conn}
}

// recordColumns is the insert column list, in template order.
var recordColumns = func() []string {
	cols := make([]string, len(core.RequiredFields))
	for i, f := range core.RequiredFields {
		cols[i] = string(f)
	}
	return cols
}()

var (
	insertRecordSQL = fmt.Sprintf(
		"INSERT INTO clienti (%s) VALUES (%s) RETURNING id, created_at",
		strings.Join(recordColumns, ", "),
		placeholders(len(recordColumns)),
	)
	selectRecordsSQL = fmt.Sprintf(
		"SELECT id, created_at, %s FROM clienti ORDER BY id",
		strings.Join(recordColumns, ", "),
	)
)

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

// recordArgs returns the insert arguments of rec in recordColumns order.
func recordArgs(rec core.Record) []any {
	args := make([]any, len(core.RequiredFields))
	for i, f := range core.RequiredFields {
		switch f {
		case core.FieldName:
			args[i] = strings.TrimSpace(rec.Name)
		case core.FieldLatitude:
			args[i] = core.ToPgFloat8(rec.Latitude)
		case core.FieldLongitude:
			args[i] = core.ToPgFloat8(rec.Longitude)
		default:
			v, ok := rec.Get(f)
			if !ok {
				args[i] = pgtype.Text{}
				continue
			}
			args[i] = core.ToPgText(&v)
		}
	}
	return args
}

// CreateRecord inserts one record and returns it with id and created_at set.
func (r *Repository) CreateRecord(ctx context.Context, rec core.Record) (core.Record, error) {
	return insertRecord(ctx, r.conn, rec)
}

func insertRecord(ctx context.Context, db core.DBTX, rec core.Record) (core.Record, error) {
	if err := db.QueryRow(ctx, insertRecordSQL, recordArgs(rec)...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return core.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

// BatchInsert inserts recs in one transaction. Each row runs under its own
// savepoint so a rejected row is rolled back alone and reported at its
// index. A non-nil error means nothing was committed.
func (r *Repository) BatchInsert(ctx context.Context, recs []core.Record) ([]error, error) {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	itemErrs := make([]error, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sp := savepointName(i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		if _, err := insertRecord(ctx, tx, rec); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			itemErrs[i] = err
			continue
		}

		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+sp)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return itemErrs, nil
}

func savepointName(i int) string {
	return fmt.Sprintf("sp_%d", i)
}

// ListRecords calls fn for every stored record in id order. Iteration stops
// at the first error from fn.
func (r *Repository) ListRecords(ctx context.Context, fn func(core.Record) error) error {
	rows, err := r.conn.Query(ctx, selectRecordsSQL)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// scanRecord reads a row produced by selectRecordsSQL.
func scanRecord(row pgx.Row) (core.Record, error) {
	var (
		rec  core.Record
		name string
		lat  pgtype.Float8
		lng  pgtype.Float8
	)
	texts := make(map[core.Field]*pgtype.Text)

	dest := []any{&rec.ID, &rec.CreatedAt}
	for _, f := range core.RequiredFields {
		switch f {
		case core.FieldName:
			dest = append(dest, &name)
		case core.FieldLatitude:
			dest = append(dest, &lat)
		case core.FieldLongitude:
			dest = append(dest, &lng)
		default:
			t := new(pgtype.Text)
			texts[f] = t
			dest = append(dest, t)
		}
	}

	if err := row.Scan(dest...); err != nil {
		return core.Record{}, fmt.Errorf("scan record: %w", err)
	}

	rec.Name = name
	rec.Latitude = core.FromPgFloat8(lat)
	rec.Longitude = core.FromPgFloat8(lng)
	for f, t := range texts {
		if v := core.FromPgText(*t); v != nil {
			rec.Set(f, *v)
		}
	}
	return rec, nil
}

// CountRecords returns the number of stored records.
func (r *Repository) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn.QueryRow(ctx, "SELECT count(*) FROM clienti").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// ============================================================================
// Import runs
// ============================================================================

// RecordRun stores the summary of a finished import.
func (r *Repository) RecordRun(ctx context.Context, run core.ImportRun) error {
	id := core.ToPgUUID(run.ID)
	if !id.Valid {
		return fmt.Errorf("record run: invalid id %q", run.ID)
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO import_runs (id, source, reference, candidates, inserted, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, string(run.Source), run.Reference, run.Candidates, run.Inserted, run.Failed, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent import runs, newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT id, source, reference, candidates, inserted, failed, started_at, finished_at
		FROM import_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRun, error) {
		var (
			run    core.ImportRun
			id     pgtype.UUID
			source string
		)
		err := row.Scan(&id, &source, &run.Reference, &run.Candidates, &run.Inserted, &run.Failed, &run.StartedAt, &run.FinishedAt)
		run.ID = core.PgUUIDToString(id)
		run.Source = core.ImportSource(source)
		return run, err
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
