package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed Job Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new Job in PENDING and returns it.
func (s *Store) Create(ctx context.Context, filename string, templateID *uuid.UUID) (*Job, error) {
	job := &Job{
		ID:         uuid.New(),
		Filename:   filename,
		Status:     StatusPending,
		TemplateID: templateID,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO import_jobs (id, filename, status, template_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, job.ID, job.Filename, job.Status, job.TemplateID).Scan(&job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("jobs: create: %w", err)
	}
	return job, nil
}

// Get loads a Job by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	job := &Job{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT filename, status, template_id, total_rows, processed_rows, error_rows,
		       started_at, finished_at, created_at
		FROM import_jobs WHERE id = $1
	`, id).Scan(&job.Filename, &job.Status, &job.TemplateID, &job.TotalRows,
		&job.ProcessedRows, &job.ErrorRows, &job.StartedAt, &job.FinishedAt, &job.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("jobs: get: %w", err)
	}
	return job, nil
}

// List returns job summaries newest first.
func (s *Store) List(ctx context.Context, skip, limit int, status Status) ([]*Job, error) {
	query := `
		SELECT id, filename, status, template_id, total_rows, processed_rows, error_rows,
		       started_at, finished_at, created_at
		FROM import_jobs
	`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	args = append(args, skip, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job := &Job{}
		if err := rows.Scan(&job.ID, &job.Filename, &job.Status, &job.TemplateID, &job.TotalRows,
			&job.ProcessedRows, &job.ErrorRows, &job.StartedAt, &job.FinishedAt, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("jobs: list scan: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// SetTotalRows records the pre-count.
func (s *Store) SetTotalRows(ctx context.Context, id uuid.UUID, total int) error {
	_, err := s.pool.Exec(ctx, `UPDATE import_jobs SET total_rows = $2 WHERE id = $1`, id, total)
	return err
}

// BeginProcessing transitions PENDING -> PROCESSING and stamps started_at.
// It is a no-op (idempotent) if the job is already terminal or already
// processing, satisfying the at-least-once redelivery contract.
func (s *Store) BeginProcessing(ctx context.Context, id uuid.UUID) (started bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, started_at = COALESCE(started_at, NOW())
		WHERE id = $1 AND status = $3
	`, id, StatusProcessing, StatusPending)
	if err != nil {
		return false, fmt.Errorf("jobs: begin processing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Complete transitions the job to COMPLETED and stamps finished_at.
func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, StatusCompleted)
}

// Fail transitions the job to FAILED and stamps finished_at.
func (s *Store) Fail(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, StatusFailed)
}

func (s *Store) finish(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, finished_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4)
	`, id, status, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("jobs: finish: %w", err)
	}
	return nil
}

// AddCounters atomically adds processed/error deltas in a single UPDATE so
// concurrent chunk completions never race a read-modify-write.
// Counters never regress because the deltas are always non-negative.
func (s *Store) AddCounters(ctx context.Context, id uuid.UUID, processedDelta, errorDelta int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET processed_rows = processed_rows + $2,
		    error_rows = error_rows + $3
		WHERE id = $1
	`, id, processedDelta, errorDelta)
	if err != nil {
		return fmt.Errorf("jobs: add counters: %w", err)
	}
	return nil
}

// AppendLog writes one append-only Job Log Line.
func (s *Store) AppendLog(ctx context.Context, id uuid.UUID, level LogLevel, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_job_logs (job_id, level, message) VALUES ($1, $2, $3)
	`, id, level, message)
	if err != nil {
		return fmt.Errorf("jobs: append log: %w", err)
	}
	return nil
}

// Logs returns every log line for a job, oldest first.
func (s *Store) Logs(ctx context.Context, id uuid.UUID) ([]*LogLine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, level, message, created_at
		FROM import_job_logs WHERE job_id = $1 ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("jobs: logs: %w", err)
	}
	defer rows.Close()

	var out []*LogLine
	for rows.Next() {
		line := &LogLine{}
		if err := rows.Scan(&line.ID, &line.JobID, &line.Level, &line.Message, &line.CreatedAt); err != nil {
			return nil, fmt.Errorf("jobs: logs scan: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
