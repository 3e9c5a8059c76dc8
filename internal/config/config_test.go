package config

import "testing"

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("QUEUE_URL", "https://sqs.example/queue")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with no DATABASE_URL = nil error, want error")
	}
}

func TestLoadRequiresQueueURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUEUE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with no QUEUE_URL = nil error, want error")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUEUE_URL", "https://sqs.example/queue")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UploadDir != "./uploads" {
		t.Errorf("UploadDir = %q, want ./uploads", cfg.UploadDir)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.BatchSize)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.QueueLongPoll.Seconds() != 20 {
		t.Errorf("QueueLongPoll = %v, want 20s", cfg.QueueLongPoll)
	}
}

func TestLoadHonorsExplicitOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("QUEUE_URL", "https://sqs.example/queue")
	t.Setenv("BATCH_SIZE", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250 from env override", cfg.BatchSize)
	}
}
