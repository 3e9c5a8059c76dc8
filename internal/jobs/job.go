// Package jobs defines the Job Store's durable record types and the
// pgx-backed repository over them.
package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the job's position in its state machine.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrNotFound is returned when a job cannot be located.
var ErrNotFound = errors.New("jobs: not found")

// ErrTerminalTransition names an attempt to move a job out of a
// terminal status. Store does not return it: its transition methods
// leave a terminal job unchanged and report no error.
var ErrTerminalTransition = errors.New("jobs: cannot leave a terminal status")

// Job is the durable record of one file ingestion.
type Job struct {
	ID            uuid.UUID
	Filename      string
	Status        Status
	TemplateID    *uuid.UUID
	TotalRows     *int
	ProcessedRows int
	ErrorRows     int
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
}

// Ext returns the staged file's extension, including the leading dot.
func (j *Job) Ext() string {
	for i := len(j.Filename) - 1; i >= 0; i-- {
		if j.Filename[i] == '.' {
			return j.Filename[i:]
		}
	}
	return ""
}

// LogLevel is the severity of a Job Log Line.
type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// LogLine is one append-only entry in a job's log.
type LogLine struct {
	ID        int64
	JobID     uuid.UUID
	Level     LogLevel
	Message   string
	CreatedAt time.Time
}
