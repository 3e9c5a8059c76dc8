// Command server runs the HTTP/SSE process: it accepts submissions via
// POST /imports and hosts the process-wide Event Bus that GET
// /imports/stream subscribers read from.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tabimport/internal/api"
	"tabimport/internal/config"
	"tabimport/internal/db"
	"tabimport/internal/eventbus"
	"tabimport/internal/jobs"
	"tabimport/internal/logging"
	"tabimport/internal/queue"
	"tabimport/internal/staging"
	"tabimport/internal/submit"
	"tabimport/internal/templates"
)

func main() {
	log := logging.New("server")

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

	server := &api.Server{
		Jobs:      jobStore,
		Templates: templateStore,
		Submitter: submit.New(jobStore, stagingStore, q),
		Bus:       bus,
		Log:       log,
		Heartbeat: cfg.SSEHeartbeat,
		MaxUpload: cfg.MaxUploadBytes,
	}
	router := api.NewRouter(server)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
}
