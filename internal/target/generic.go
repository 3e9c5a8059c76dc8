package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tabimport/internal/mapping"
)

// GenericRepository is the dynamic schema backend: it builds SQL
// against whatever table and columns a Mapping Configuration names, and
// optionally creates the table first, using parameterized SQL built
// from validated identifiers (mapping.ValidateTableName/
// ValidateColumnName already reject anything that isn't a bare
// identifier).
type GenericRepository struct {
	pool   *pgxpool.Pool
	jobID  uuid.UUID
	config *mapping.Config
}

func NewGenericRepository(pool *pgxpool.Pool, jobID uuid.UUID, config *mapping.Config) *GenericRepository {
	return &GenericRepository{pool: pool, jobID: jobID, config: config}
}

var sqlColumnType = map[mapping.ColumnType]string{
	mapping.TypeString:   "TEXT",
	mapping.TypeInt:      "INTEGER",
	mapping.TypeFloat:    "DOUBLE PRECISION",
	mapping.TypeDecimal:  "NUMERIC(14,2)",
	mapping.TypeDate:     "DATE",
	mapping.TypeDatetime: "TIMESTAMPTZ",
	mapping.TypeBoolean:  "BOOLEAN",
	mapping.TypeFK:       "UUID",
}

// EnsureTable creates the target table if the mapping asks for it and
// it doesn't already exist, then registers it in dynamic_entities so it
// surfaces in the generic-entity menu.
func (r *GenericRepository) EnsureTable(ctx context.Context, displayName string) error {
	if !r.config.CreateTable {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", r.config.TargetTable)
	sb.WriteString("\tid UUID PRIMARY KEY,\n\tjob_id UUID NOT NULL,\n")
	for _, col := range r.config.Columns {
		sqlType := sqlColumnType[col.Type]
		notNull := ""
		if col.Required {
			notNull = " NOT NULL"
		}
		fmt.Fprintf(&sb, "\t%s %s%s,\n", col.DBColumn, sqlType, notNull)
	}
	sb.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()\n)")
	// Unique columns form one joint key: a single composite index, not
	// one index per column, matching how the Row Processor dedupes.
	if unique := r.config.UniqueColumns(); len(unique) > 0 {
		fmt.Fprintf(&sb, ";\nCREATE UNIQUE INDEX IF NOT EXISTS ix_%s_unique ON %s (%s)",
			r.config.TargetTable, r.config.TargetTable, strings.Join(unique, ", "))
	}

	if _, err := r.pool.Exec(ctx, sb.String()); err != nil {
		return fmt.Errorf("target: create table: %w", err)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO dynamic_entities (id, table_name, display_name, created_by_job_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (table_name) DO NOTHING
	`, uuid.New(), r.config.TargetTable, displayName, r.jobID)
	if err != nil {
		return fmt.Errorf("target: register dynamic entity: %w", err)
	}
	return nil
}

func (r *GenericRepository) ExistingValues(ctx context.Context, columns []string, keys []string) (map[string]bool, error) {
	return existingValuesByColumns(ctx, r.pool, r.config.TargetTable, columns, keys)
}

func (r *GenericRepository) columnOrder() []string {
	cols := make([]string, len(r.config.Columns))
	for i, c := range r.config.Columns {
		cols[i] = c.DBColumn
	}
	return cols
}

func (r *GenericRepository) BulkInsert(ctx context.Context, records []Record) (int, []int, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}
	cols := r.columnOrder()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("target: begin: %w", err)
	}

	query, args := r.buildInsert(cols, records)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		_ = tx.Rollback(ctx)
		return r.insertPerRow(ctx, cols, records)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("target: commit: %w", err)
	}
	return len(records), nil, nil
}

func (r *GenericRepository) buildInsert(cols []string, records []Record) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (id, job_id, %s) VALUES ", r.config.TargetTable, strings.Join(cols, ", "))
	args := make([]any, 0, len(records)*(len(cols)+2))
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		base := len(args)
		placeholders := make([]string, len(cols)+2)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		sb.WriteString(strings.Join(placeholders, ", "))
		sb.WriteByte(')')
		args = append(args, uuid.New(), r.jobID)
		for _, col := range cols {
			args = append(args, rec[col])
		}
	}
	return sb.String(), args
}

func (r *GenericRepository) insertPerRow(ctx context.Context, cols []string, records []Record) (int, []int, error) {
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
		query, args := r.buildInsert(cols, []Record{rec})
		if _, err := sp.Exec(ctx, query, args...); err != nil {
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

// Lookup and CreatePlaceholder implement LookupRepository for FK
// resolution against an arbitrary table/column pair.
func (r *GenericRepository) Lookup(ctx context.Context, table, value string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 LIMIT 1`, table, r.fkLookupColumn(table)), value).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.UUID{}, false, nil
		}
		return uuid.UUID{}, false, fmt.Errorf("target: fk lookup: %w", err)
	}
	return id, true, nil
}

func (r *GenericRepository) fkLookupColumn(table string) string {
	for _, col := range r.config.Columns {
		if col.FK != nil && col.FK.Table == table {
			return col.FK.LookupColumn
		}
	}
	return "id"
}

func (r *GenericRepository) CreatePlaceholder(ctx context.Context, table, value string) (uuid.UUID, error) {
	id := uuid.New()
	column := r.fkLookupColumn(table)
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, %s) VALUES ($1, $2)`, table, column), id, value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("target: fk create placeholder: %w", err)
	}
	return id, nil
}
