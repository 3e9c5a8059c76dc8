// Package config resolves the process-wide settings the import pipeline
// needs, reading environment variables through viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every env var the process recognizes.
type Config struct {
	DatabaseURL string

	QueueURL             string
	QueueEndpointOverride string
	AWSRegion            string

	UploadDir string

	BatchSize          int
	MaxUploadBytes     int64
	ProgressThrottle   time.Duration
	SSEHeartbeat       time.Duration
	QueueLongPoll      time.Duration
	QueueVisibility    time.Duration

	HTTPAddr string

	WorkerConcurrency int
}

// Load resolves Config from the environment, applying defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("BATCH_SIZE", 1000)
	v.SetDefault("MAX_UPLOAD_BYTES", 20*1024*1024)
	v.SetDefault("PROGRESS_THROTTLE_MS", 1000)
	v.SetDefault("SSE_HEARTBEAT_SEC", 30)
	v.SetDefault("QUEUE_LONG_POLL_SEC", 20)
	v.SetDefault("QUEUE_VISIBILITY_SEC", 300)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("WORKER_CONCURRENCY", 4)

	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	queueURL := v.GetString("QUEUE_URL")
	if queueURL == "" {
		return nil, fmt.Errorf("config: QUEUE_URL is required")
	}

	return &Config{
		DatabaseURL:            dbURL,
		QueueURL:               queueURL,
		QueueEndpointOverride:  v.GetString("QUEUE_ENDPOINT_OVERRIDE"),
		AWSRegion:              v.GetString("AWS_REGION"),
		UploadDir:              v.GetString("UPLOAD_DIR"),
		BatchSize:              v.GetInt("BATCH_SIZE"),
		MaxUploadBytes:         v.GetInt64("MAX_UPLOAD_BYTES"),
		ProgressThrottle:       time.Duration(v.GetInt("PROGRESS_THROTTLE_MS")) * time.Millisecond,
		SSEHeartbeat:           time.Duration(v.GetInt("SSE_HEARTBEAT_SEC")) * time.Second,
		QueueLongPoll:          time.Duration(v.GetInt("QUEUE_LONG_POLL_SEC")) * time.Second,
		QueueVisibility:        time.Duration(v.GetInt("QUEUE_VISIBILITY_SEC")) * time.Second,
		HTTPAddr:               v.GetString("HTTP_ADDR"),
		WorkerConcurrency:      v.GetInt("WORKER_CONCURRENCY"),
	}, nil
}
