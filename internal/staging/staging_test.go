package staging

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestPutThenOpenRoundTrips(t *testing.T) {
	s := NewStore(t.TempDir())
	jobID := uuid.New()

	dst, err := s.Put(context.Background(), jobID, ".csv", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if dst != s.Path(jobID, ".csv") {
		t.Errorf("Put() returned %q, want %q", dst, s.Path(jobID, ".csv"))
	}

	f, err := s.Open(context.Background(), jobID, ".csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	if string(buf[:n]) != "a,b\n1,2\n" {
		t.Errorf("Open() content = %q, want %q", buf[:n], "a,b\n1,2\n")
	}
}

func TestOpenMissingFileReturnsErrNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Open(context.Background(), uuid.New(), ".csv")
	if err != ErrNotFound {
		t.Errorf("Open() on missing file = %v, want ErrNotFound", err)
	}
}

func TestPutRefusesToOverwriteExistingFile(t *testing.T) {
	s := NewStore(t.TempDir())
	jobID := uuid.New()

	if _, err := s.Put(context.Background(), jobID, ".csv", strings.NewReader("first")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := s.Put(context.Background(), jobID, ".csv", strings.NewReader("second")); err == nil {
		t.Error("second Put() to the same key = nil error, want error (overwrite should not occur)")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := NewStore(t.TempDir())
	jobID := uuid.New()

	if err := s.Delete(context.Background(), jobID, ".csv"); err != nil {
		t.Errorf("Delete() on never-written key = %v, want nil", err)
	}

	if _, err := s.Put(context.Background(), jobID, ".csv", strings.NewReader("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(context.Background(), jobID, ".csv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(s.Path(jobID, ".csv")); !os.IsNotExist(err) {
		t.Error("file still exists on disk after Delete")
	}
	if err := s.Delete(context.Background(), jobID, ".csv"); err != nil {
		t.Errorf("second Delete() = %v, want nil (idempotent)", err)
	}
}

func TestPathDoesNotTouchDisk(t *testing.T) {
	s := NewStore(t.TempDir())
	jobID := uuid.New()

	p := s.Path(jobID, ".xlsx")
	if !strings.HasSuffix(p, jobID.String()+".xlsx") {
		t.Errorf("Path() = %q, want suffix %q", p, jobID.String()+".xlsx")
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("Path() appears to have created a file")
	}
}
