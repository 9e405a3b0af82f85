package core

// batch.go submits candidate records to the persistence boundary.
//
// Every candidate is attempted independently: a rejected or failed row is
// recorded in BatchResult.Errors and its siblings continue. The importer does
// not deduplicate; importing the same rows twice stores them twice.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ProgressFunc is called as candidates are processed.
type ProgressFunc func(done, total int)

// BatchImporter validates candidates and hands them to a RecordStore.
// When the store also implements BatchStore the valid rows are written in one
// call; otherwise CreateRecord is called once per row, in order.
type BatchImporter struct {
	store    RecordStore
	logger   *slog.Logger
	progress ProgressFunc
}

// NewBatchImporter creates an importer over store.
func NewBatchImporter(store RecordStore) *BatchImporter {
	return &BatchImporter{store: store, logger: slog.Default()}
}

// WithLogger returns a copy of the importer that logs to l.
func (b *BatchImporter) WithLogger(l *slog.Logger) *BatchImporter {
	cp := *b
	cp.logger = l
	return &cp
}

// WithProgress returns a copy of the importer that reports progress to fn.
func (b *BatchImporter) WithProgress(fn ProgressFunc) *BatchImporter {
	cp := *b
	cp.progress = fn
	return &cp
}

// Import validates and persists candidates. Inserted+Failed always equals
// len(candidates) and each failed index appears exactly once in Errors, in
// ascending order.
func (b *BatchImporter) Import(ctx context.Context, candidates []Record) BatchResult {
	result := BatchResult{Errors: []RowError{}}
	total := len(candidates)

	valid := make([]Record, 0, total)
	validIdx := make([]int, 0, total)
	for i, rec := range candidates {
		if errs := ValidateRecord(rec); len(errs) > 0 {
			result.Errors = append(result.Errors, RowError{
				Index:   i,
				Code:    errs[0].Code,
				Message: errs[0].Error(),
			})
			continue
		}
		valid = append(valid, rec)
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		if bs, ok := b.store.(BatchStore); ok {
			b.insertBatch(ctx, bs, valid, validIdx, &result)
		} else {
			b.insertEach(ctx, valid, validIdx, total-len(valid), &result)
		}
	}

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Index < result.Errors[j].Index
	})
	result.Failed = len(result.Errors)
	if b.progress != nil {
		b.progress(total, total)
	}

	b.logger.Info("batch import finished",
		"candidates", total,
		"inserted", result.Inserted,
		"failed", result.Failed,
	)
	return result
}

func (b *BatchImporter) insertBatch(ctx context.Context, bs BatchStore, valid []Record, validIdx []int, result *BatchResult) {
	itemErrs, err := bs.BatchInsert(ctx, valid)
	if err == nil && len(itemErrs) != len(valid) {
		err = fmt.Errorf("batch insert returned %d outcomes for %d records", len(itemErrs), len(valid))
	}
	if err != nil {
		b.logger.Error("batch insert failed", "records", len(valid), "error", err)
		code := MapError(err).Code
		for _, idx := range validIdx {
			result.Errors = append(result.Errors, RowError{Index: idx, Code: code, Message: err.Error()})
		}
		return
	}

	for j, itemErr := range itemErrs {
		if itemErr != nil {
			result.Errors = append(result.Errors, rowError(validIdx[j], itemErr))
			continue
		}
		result.Inserted++
	}
}

func (b *BatchImporter) insertEach(ctx context.Context, valid []Record, validIdx []int, done int, result *BatchResult) {
	total := done + len(valid)
	for j, rec := range valid {
		if err := ctx.Err(); err != nil {
			for _, idx := range validIdx[j:] {
				result.Errors = append(result.Errors, rowError(idx, err))
			}
			return
		}

		if _, err := b.store.CreateRecord(ctx, rec); err != nil {
			b.logger.Debug("record rejected by store", "index", validIdx[j], "error", err)
			result.Errors = append(result.Errors, rowError(validIdx[j], err))
		} else {
			result.Inserted++
		}

		done++
		if b.progress != nil {
			b.progress(done, total)
		}
	}
}

// rowError converts a per-row store error to a RowError, keeping the code of
// validation errors raised by the store itself.
func rowError(index int, err error) RowError {
	var ve ValidationError
	if errors.As(err, &ve) {
		return RowError{Index: index, Code: ve.Code, Message: ve.Error()}
	}
	return RowError{Index: index, Code: MapError(err).Code, Message: err.Error()}
}
