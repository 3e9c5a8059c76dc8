// Package submit implements the Submitter role: accept a candidate
// file, create a durable job record, stage the bytes, precompute the
// row total, and enqueue a work item, as an ordered sequence of
// individually-checkpointed effects.
package submit

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"tabimport/internal/jobs"
	"tabimport/internal/queue"
	"tabimport/internal/spreadsheet"
)

// Result identifies the submitted job. Submit also returns it, together
// with the error, when a step after job creation fails.
type Result struct {
	JobID  uuid.UUID
	Status jobs.Status
}

var allowedExtensions = map[string]bool{".csv": true, ".xls": true, ".xlsx": true}

// JobCreator is the slice of the Job Store the Submitter needs.
type JobCreator interface {
	Create(ctx context.Context, filename string, templateID *uuid.UUID) (*jobs.Job, error)
	SetTotalRows(ctx context.Context, id uuid.UUID, total int) error
}

// Stager is the slice of Blob Staging the Submitter needs.
type Stager interface {
	Put(ctx context.Context, jobID uuid.UUID, ext string, stream io.Reader) (string, error)
}

// Submitter wires the Job Store, Blob Staging, Spreadsheet Reader, and
// Work Queue together for intake.
type Submitter struct {
	Jobs    JobCreator
	Staging Stager
	Queue   queue.WorkQueue
}

func New(jobStore JobCreator, stagingStore Stager, q queue.WorkQueue) *Submitter {
	return &Submitter{Jobs: jobStore, Staging: stagingStore, Queue: q}
}

// Submit runs four checkpointed effects in order: insert Job(PENDING),
// stage bytes, count rows, enqueue. A failure past step 1 leaves the
// job in PENDING with partial side effects by design; the worker's own
// idempotent start logic tolerates a missing total or a not-yet-enqueued
// message on manual retry.
func (s *Submitter) Submit(ctx context.Context, filename string, templateID *uuid.UUID, stream io.Reader) (*Result, error) {
	ext := extOf(filename)
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("submit: unsupported extension %q", ext)
	}

	job, err := s.Jobs.Create(ctx, filename, templateID)
	if err != nil {
		return nil, fmt.Errorf("submit: create job: %w", err)
	}

	path, err := s.Staging.Put(ctx, job.ID, job.Ext(), stream)
	if err != nil {
		return &Result{JobID: job.ID, Status: jobs.StatusPending}, fmt.Errorf("submit: stage file: %w", err)
	}

	reader, err := spreadsheet.Open(path)
	if err != nil {
		return &Result{JobID: job.ID, Status: jobs.StatusPending}, fmt.Errorf("submit: open staged file: %w", err)
	}
	total, err := reader.CountRows()
	if err != nil {
		return &Result{JobID: job.ID, Status: jobs.StatusPending}, fmt.Errorf("submit: count rows: %w", err)
	}
	if err := s.Jobs.SetTotalRows(ctx, job.ID, total); err != nil {
		return &Result{JobID: job.ID, Status: jobs.StatusPending}, fmt.Errorf("submit: set total rows: %w", err)
	}

	if err := s.Queue.Publish(ctx, job.ID); err != nil {
		return &Result{JobID: job.ID, Status: jobs.StatusPending}, fmt.Errorf("submit: publish: %w", err)
	}

	return &Result{JobID: job.ID, Status: jobs.StatusPending}, nil
}

func extOf(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx:])
}
