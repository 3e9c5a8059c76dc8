package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VehicleRepository is the fixed schema backend for the built-in
// vehicle preset (modelo, placa, ano, valor_fipe).
type VehicleRepository struct {
	pool  *pgxpool.Pool
	jobID uuid.UUID
}

func NewVehicleRepository(pool *pgxpool.Pool, jobID uuid.UUID) *VehicleRepository {
	return &VehicleRepository{pool: pool, jobID: jobID}
}

func (r *VehicleRepository) ExistingValues(ctx context.Context, columns []string, keys []string) (map[string]bool, error) {
	if len(columns) != 1 || columns[0] != "placa" {
		return nil, fmt.Errorf("target: vehicle repository only supports unique column placa, got %v", columns)
	}
	return existingValuesByColumns(ctx, r.pool, "imported_vehicles", columns, keys)
}

func (r *VehicleRepository) BulkInsert(ctx context.Context, records []Record) (int, []int, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("target: begin: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO imported_vehicles (id, job_id, modelo, placa, ano, valor_fipe) VALUES `)
	args := make([]any, 0, len(records)*6)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, uuid.New(), r.jobID, rec["modelo"], rec["placa"], rec["ano"], rec["valor_fipe"])
	}

	if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
		_ = tx.Rollback(ctx)
		return r.insertPerRow(ctx, records)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("target: commit: %w", err)
	}
	return len(records), nil, nil
}

// insertPerRow falls back to one savepoint-wrapped insert per record
// after the bulk statement hit a constraint violation. pgx implements
// nested Begin() as a SAVEPOINT automatically.
func (r *VehicleRepository) insertPerRow(ctx context.Context, records []Record) (int, []int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("target: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	var failed []int
	for i, rec := range records {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return inserted, failed, fmt.Errorf("target: savepoint: %w", err)
		}
		_, err = sp.Exec(ctx, `
			INSERT INTO imported_vehicles (id, job_id, modelo, placa, ano, valor_fipe)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), r.jobID, rec["modelo"], rec["placa"], rec["ano"], rec["valor_fipe"])
		if err != nil {
			_ = sp.Rollback(ctx)
			failed = append(failed, i)
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			failed = append(failed, i)
			continue
		}
		inserted++
	}
	if err := tx.Commit(ctx); err != nil {
		return inserted, failed, fmt.Errorf("target: commit: %w", err)
	}
	return inserted, failed, nil
}

// compositeKeyDelim joins normalized column values into one composite
// duplicate-detection key. Must match the delimiter the Row Processor
// uses to build the keys it probes with.
const compositeKeyDelim = "\x1f"

// existingValuesByColumns probes table for rows whose composite key
// (columns joined with compositeKeyDelim, each cast to text and
// LOWER()-folded, which leaves the text of numbers and dates unchanged) matches
// one of keys. Both the WHERE clause and the selected expression apply
// the same LOWER() folding the caller already applied when building
// keys, so a case-sensitive column like placa (stored upper-cased)
// still matches a lower-cased probe value.
func existingValuesByColumns(ctx context.Context, pool *pgxpool.Pool, table string, columns []string, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}
	exprs := make([]string, len(columns))
	for i, col := range columns {
		exprs[i] = fmt.Sprintf("LOWER(%s::text)", col)
	}
	expr := strings.Join(exprs, " || '"+compositeKeyDelim+"' || ")
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ANY($1)`, expr, table, expr)
	rows, err := pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("target: existing values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool, len(keys))
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("target: scan existing value: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}
