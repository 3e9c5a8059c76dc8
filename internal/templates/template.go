// Package templates persists reusable Mapping Configurations so the
// Worker re-loads one by template_id rather than carrying it in the
// queue payload, using pgx/v5 in the same style as internal/jobs.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tabimport/internal/mapping"
)

// ErrNotFound is returned when a template id or name has no matching row.
var ErrNotFound = errors.New("templates: not found")

// Template is a persisted, named Mapping Configuration.
type Template struct {
	ID          uuid.UUID
	Name        string
	TargetTable string
	CreateTable bool
	Mapping     *mapping.Config
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is a pgx-backed repository over import_templates.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, name string, cfg *mapping.Config) (*Template, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("templates: marshal mapping: %w", err)
	}

	t := &Template{
		ID:          uuid.New(),
		Name:        name,
		TargetTable: cfg.TargetTable,
		CreateTable: cfg.CreateTable,
		Mapping:     cfg,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO import_templates (id, name, target_table, create_table, mapping_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.TargetTable, t.CreateTable, raw).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("templates: create: %w", err)
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Template, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, target_table, create_table, mapping_config, created_at, updated_at
		FROM import_templates WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (s *Store) GetByName(ctx context.Context, name string) (*Template, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, target_table, create_table, mapping_config, created_at, updated_at
		FROM import_templates WHERE name = $1
	`, name)
	return scanTemplate(row)
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var raw []byte
	err := row.Scan(&t.ID, &t.Name, &t.TargetTable, &t.CreateTable, &raw, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("templates: get: %w", err)
	}
	var cfg mapping.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("templates: unmarshal mapping: %w", err)
	}
	t.Mapping = &cfg
	return &t, nil
}

func (s *Store) List(ctx context.Context, skip, limit int, targetTable string) ([]*Template, error) {
	query := `SELECT id, name, target_table, create_table, mapping_config, created_at, updated_at FROM import_templates`
	args := []any{}
	if targetTable != "" {
		query += ` WHERE target_table = $1`
		args = append(args, targetTable)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	args = append(args, skip, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, id uuid.UUID, name string, cfg *mapping.Config) (*Template, error) {
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		existing.Name = name
	}
	if cfg != nil {
		existing.Mapping = cfg
		existing.TargetTable = cfg.TargetTable
		existing.CreateTable = cfg.CreateTable
	}
	raw, err := json.Marshal(existing.Mapping)
	if err != nil {
		return nil, fmt.Errorf("templates: marshal mapping: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE import_templates
		SET name = $2, target_table = $3, create_table = $4, mapping_config = $5, updated_at = NOW()
		WHERE id = $1
	`, id, existing.Name, existing.TargetTable, existing.CreateTable, raw)
	if err != nil {
		return nil, fmt.Errorf("templates: update: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("templates: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
