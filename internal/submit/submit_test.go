package submit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tabimport/internal/jobs"
	"tabimport/internal/queue"
	"tabimport/internal/staging"
)

type fakeJobCreator struct {
	created   *jobs.Job
	totalRows int
}

func (f *fakeJobCreator) Create(ctx context.Context, filename string, templateID *uuid.UUID) (*jobs.Job, error) {
	f.created = &jobs.Job{ID: uuid.New(), Filename: filename, Status: jobs.StatusPending, TemplateID: templateID}
	return f.created, nil
}

func (f *fakeJobCreator) SetTotalRows(ctx context.Context, id uuid.UUID, total int) error {
	f.totalRows = total
	return nil
}

func TestSubmitHappyPath(t *testing.T) {
	fake := &fakeJobCreator{}
	stagingStore := staging.NewStore(t.TempDir())
	q := queue.NewMemory(300 * time.Second)
	s := New(fake, stagingStore, q)

	result, err := s.Submit(context.Background(), "vehicles.csv", nil, strings.NewReader("modelo,placa\nCivic,ABC1D23\nGol,DEF5G67\n"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != jobs.StatusPending {
		t.Fatalf("Status = %v, want PENDING", result.Status)
	}
	if fake.totalRows != 2 {
		t.Fatalf("totalRows = %d, want 2", fake.totalRows)
	}

	messages, err := q.Receive(context.Background(), 1, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(messages) != 1 || messages[0].JobID != fake.created.ID {
		t.Fatalf("queue did not receive the submitted job id")
	}
}

func TestSubmitRejectsUnsupportedExtension(t *testing.T) {
	fake := &fakeJobCreator{}
	stagingStore := staging.NewStore(t.TempDir())
	q := queue.NewMemory(300 * time.Second)
	s := New(fake, stagingStore, q)

	_, err := s.Submit(context.Background(), "vehicles.pdf", nil, strings.NewReader("x"))
	if err == nil {
		t.Fatal("Submit(.pdf) = nil error, want error")
	}
	if fake.created != nil {
		t.Fatal("Submit should reject before creating a job for an unsupported extension")
	}
}
