// Package worker implements the Worker role: one or more long-running
// processes, each consuming queue messages, loading the job,
// dispatching it to the Row Processor, and acking the queue message
// only after all durable effects have landed. A bounded pool of
// worker goroutines, built on golang.org/x/sync/errgroup, lets one
// process drain several messages concurrently.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tabimport/internal/jobs"
	"tabimport/internal/logging"
	"tabimport/internal/mapping"
	"tabimport/internal/queue"
	"tabimport/internal/rowprocessor"
	"tabimport/internal/spreadsheet"
)

// TargetResolver builds the target.Repository/LookupRepository pair and
// the mapping.Config a job's template (or the built-in vehicle preset,
// when the job has no template) requires. Kept as an interface so the
// worker doesn't need to know about pgxpool directly.
type TargetResolver interface {
	Resolve(ctx context.Context, job *jobs.Job) (*mapping.Config, rowprocessor.Target, error)
}

// JobLoader is the slice of the Job Store the Worker needs.
type JobLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
}

// PathResolver is the slice of Blob Staging the Worker needs.
type PathResolver interface {
	Path(jobID uuid.UUID, ext string) string
}

// RowProcessor is the slice of the Row Processor the Worker drives.
type RowProcessor interface {
	Process(ctx context.Context, jobID uuid.UUID, reader spreadsheet.Reader, cfg *mapping.Config, tgt rowprocessor.Target, chunkSize int) error
}

// Worker consumes queue messages and dispatches them to the Row Processor.
type Worker struct {
	Jobs        JobLoader
	Staging     PathResolver
	Queue       queue.WorkQueue
	Resolver    TargetResolver
	Processor   RowProcessor
	Log         zerolog.Logger
	Concurrency int
	LongPoll    time.Duration
}

// Run long-polls the queue until ctx is cancelled, dispatching each
// received message to a bounded pool of goroutines.
func (w *Worker) Run(ctx context.Context) error {
	concurrency := w.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := w.Queue.Receive(ctx, int32(concurrency), w.LongPoll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Error().Err(err).Msg("queue receive failed, backing off")
			time.Sleep(5 * time.Second)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, msg := range messages {
			msg := msg
			sem <- struct{}{}
			g.Go(func() error {
				defer func() { <-sem }()
				w.handle(gctx, msg)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// handle processes one message. Errors are logged, not returned: a
// failed job is recorded as FAILED by the Row Processor itself, and the
// message is deliberately left unacked on any earlier infrastructure
// error so it redelivers.
func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	log := logging.ForJob(w.Log, msg.JobID.String())

	job, err := w.Jobs.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			log.Warn().Msg("job not found, dropping message")
			_ = w.Queue.Delete(ctx, msg.ReceiptHandle)
			return
		}
		log.Error().Err(err).Msg("failed to load job, leaving message for redelivery")
		return
	}

	cfg, tgt, err := w.Resolver.Resolve(ctx, job)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve target, leaving message for redelivery")
		return
	}

	ext := job.Ext()
	path := w.Staging.Path(job.ID, ext)
	reader, err := spreadsheet.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open staged file, leaving message for redelivery")
		return
	}

	if err := w.Processor.Process(ctx, job.ID, reader, cfg, tgt, defaultChunkSize); err != nil {
		// Wrapped here, at the job-level failure boundary, so a stack
		// trace is attached before the error crosses into the log sink —
		// the Processor itself has already recorded the FAILED transition.
		wrapped := pkgerrors.Wrap(err, "worker: job processing failed")
		log.Error().Stack().Err(wrapped).Msg("job processing failed; status recorded as FAILED")
	}

	if err := w.Queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		log.Error().Err(err).Msg("failed to delete queue message after processing")
	}
}

const defaultChunkSize = 1000
