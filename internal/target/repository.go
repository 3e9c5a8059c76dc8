// Package target implements the Row Processor's two target-table
// backends: a fixed schema for the built-in vehicle preset, and a
// generic schema driven by a Mapping Configuration with its own
// table registry.
package target

import (
	"context"

	"github.com/google/uuid"
)

// Repository is what the Row Processor needs from a target table: a
// batched existence probe over the composite unique key and a bulk
// insert with per-row savepoint fallback on constraint violation.
type Repository interface {
	// ExistingValues returns the subset of keys already present in the
	// target table, for the cross-file duplicate probe. Each key is one
	// composite value built by joining the normalized value of every
	// column in columns, in order, with the same delimiter the caller
	// used to build keys; columns is the full set of unique columns
	// treated jointly, not probed one at a time.
	ExistingValues(ctx context.Context, columns []string, keys []string) (map[string]bool, error)
	// BulkInsert attempts one bulk insert of records; on constraint
	// violation it falls back to per-row insert within a savepoint.
	// inserted is the count of rows actually written; failed is the
	// zero-based indices, into records, of rows rejected by a
	// constraint (counted as errors by the caller).
	BulkInsert(ctx context.Context, records []Record) (inserted int, failed []int, err error)
}

// Record is one normalized row ready for insertion, keyed by db_column name.
type Record map[string]any

// LookupRepository is the narrower contract the Row Processor needs for
// FK resolution: an existence lookup against another table's lookup
// column, plus a placeholder insert for on_missing=create.
type LookupRepository interface {
	Lookup(ctx context.Context, table, value string) (uuid.UUID, bool, error)
	CreatePlaceholder(ctx context.Context, table, value string) (uuid.UUID, error)
}
