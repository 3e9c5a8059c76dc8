// Package logging wires the process-wide zerolog logger, grounded on
// stratum-api's internal/temporal/logging.go (one base logger, job-scoped
// sub-loggers carry identifying fields).
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// New builds the base logger for a process (server or worker). Stack
// traces attached via pkg/errors (the Worker's job-failure boundary)
// render through zerolog's ErrorStackMarshaler hook.
func New(component string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ForJob returns a sub-logger that always carries job_id.
func ForJob(base zerolog.Logger, jobID string) zerolog.Logger {
	return base.With().Str("job_id", jobID).Logger()
}
