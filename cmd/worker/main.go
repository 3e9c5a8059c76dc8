// Command worker runs the Worker role: a long-poll queue consumer that
// drives each received job through the Row Processor.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"tabimport/internal/config"
	"tabimport/internal/db"
	"tabimport/internal/eventbus"
	"tabimport/internal/jobs"
	"tabimport/internal/logging"
	"tabimport/internal/queue"
	"tabimport/internal/rowprocessor"
	"tabimport/internal/staging"
	"tabimport/internal/templates"
	"tabimport/internal/worker"
)

func main() {
	log := logging.New("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	q, err := queue.New(ctx, cfg.AWSRegion, cfg.QueueURL, cfg.QueueEndpointOverride)
	if err != nil {
		log.Fatal().Err(err).Msg("queue client init failed")
	}

	jobStore := jobs.NewStore(pool)
	templateStore := templates.NewStore(pool)
	stagingStore := staging.NewStore(cfg.UploadDir)
	bus := eventbus.NewBus()
	defer bus.Close()

	proc := rowprocessor.New(jobStore, stagingStore, bus, log, cfg.ProgressThrottle)

	w := &worker.Worker{
		Jobs:        jobStore,
		Staging:     stagingStore,
		Queue:       q,
		Resolver:    worker.NewResolver(pool, templateStore),
		Processor:   proc,
		Log:         log,
		Concurrency: cfg.WorkerConcurrency,
		LongPoll:    cfg.QueueLongPoll,
	}

	log.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := w.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker exited with error")
	}
	log.Info().Msg("worker shut down cleanly")
}
