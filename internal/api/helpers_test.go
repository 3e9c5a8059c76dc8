package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabimport/internal/jobs"
)

func TestParseIntDefault(t *testing.T) {
	if v := parseIntDefault("", 50); v != 50 {
		t.Fatalf("parseIntDefault(\"\") = %d, want 50", v)
	}
	if v := parseIntDefault("not-a-number", 50); v != 50 {
		t.Fatalf("parseIntDefault(garbage) = %d, want default 50", v)
	}
	if v := parseIntDefault("12", 50); v != 12 {
		t.Fatalf("parseIntDefault(\"12\") = %d, want 12", v)
	}
}

func TestStatusSnapshotPayloadOmitsNilFields(t *testing.T) {
	job := &jobs.Job{ID: uuid.New(), Status: jobs.StatusPending, ProcessedRows: 3, ErrorRows: 1}
	payload := statusSnapshotPayload(job)

	if payload["status"] != jobs.StatusPending {
		t.Fatalf("status = %v, want PENDING", payload["status"])
	}
	if _, ok := payload["total_rows"]; ok {
		t.Fatal("total_rows should be omitted when TotalRows is nil")
	}
	if _, ok := payload["started_at"]; ok {
		t.Fatal("started_at should be omitted when StartedAt is nil")
	}
}

func TestStatusSnapshotPayloadIncludesSetFields(t *testing.T) {
	total := 10
	started := time.Now()
	job := &jobs.Job{ID: uuid.New(), Status: jobs.StatusProcessing, TotalRows: &total, StartedAt: &started}
	payload := statusSnapshotPayload(job)

	if payload["total_rows"] != 10 {
		t.Fatalf("total_rows = %v, want 10", payload["total_rows"])
	}
	if payload["started_at"] != &started {
		t.Fatal("started_at should reference the job's StartedAt pointer")
	}
}

func TestConnectedPayload(t *testing.T) {
	if p := connectedPayload(""); len(p) != 0 {
		t.Fatalf("connectedPayload(\"\") = %v, want empty", p)
	}
	p := connectedPayload("job-123")
	if p["job_id"] != "job-123" {
		t.Fatalf("connectedPayload(job-123) = %v", p)
	}
}

func TestWriteSSEEventFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSEEvent(rec, "status_update", map[string]any{"job_id": "abc"})

	got := rec.Body.String()
	want := "event: status_update\ndata: {\"job_id\":\"abc\"}\n\n"
	if got != want {
		t.Fatalf("writeSSEEvent output = %q, want %q", got, want)
	}
}

func TestResolveTemplateIDRejectsInvalidUUID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/imports", bytes.NewReader(nil))
	c.Request.Form = map[string][]string{"template_id": {"not-a-uuid"}}

	_, err := s.resolveTemplateID(c)
	if err != errInvalidTemplateID {
		t.Fatalf("resolveTemplateID = %v, want errInvalidTemplateID", err)
	}
}

func TestResolveTemplateIDRejectsInvalidMappingJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/imports", bytes.NewReader(nil))
	c.Request.Form = map[string][]string{"mapping_config": {"{not json"}}

	_, err := s.resolveTemplateID(c)
	if err != errInvalidMappingConfig {
		t.Fatalf("resolveTemplateID = %v, want errInvalidMappingConfig", err)
	}
}

func TestResolveTemplateIDReturnsNilWhenNeitherSupplied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/imports", bytes.NewReader(nil))
	c.Request.Form = map[string][]string{}

	id, err := s.resolveTemplateID(c)
	if err != nil || id != nil {
		t.Fatalf("resolveTemplateID = (%v, %v), want (nil, nil)", id, err)
	}
}
