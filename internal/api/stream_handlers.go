package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabimport/internal/eventbus"
	"tabimport/internal/jobs"
)

func parseJobID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

// handleStream implements GET /imports/stream: a per-connection SSE
// producer subscribing to the in-process Event Bus.
func (s *Server) handleStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	jobID := c.Query("job_id")
	sub := s.Bus.Subscribe(jobID)
	defer sub.Close()

	if jobID != "" {
		s.writeInitialSnapshot(c, jobID)
	}
	writeSSEEvent(c.Writer, string(eventbus.EventConnected), connectedPayload(jobID))
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		if ctx.Err() != nil {
			return
		}
		evt, ok := sub.Next(s.heartbeatInterval())
		if !ok {
			if ctx.Err() != nil {
				return
			}
			c.Writer.Write([]byte(":heartbeat\n\n"))
			flusher.Flush()
			continue
		}
		writeSSEEvent(c.Writer, string(evt.Type), evt.Data)
		flusher.Flush()
	}
}

func (s *Server) heartbeatInterval() (d time.Duration) {
	if s.Heartbeat > 0 {
		return s.Heartbeat
	}
	return 30 * time.Second
}

// writeInitialSnapshot sends a status_update snapshot before any bus
// event, reading the job's current state directly since it may
// already be terminal.
func (s *Server) writeInitialSnapshot(c *gin.Context, rawJobID string) {
	id, err := parseJobID(rawJobID)
	if err != nil {
		return
	}
	job, err := s.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		if err != jobs.ErrNotFound {
			s.Log.Warn().Err(err).Str("job_id", rawJobID).Msg("stream: failed to load initial job snapshot")
		}
		return
	}
	writeSSEEvent(c.Writer, string(eventbus.EventStatusUpdate), statusSnapshotPayload(job))
}

func statusSnapshotPayload(job *jobs.Job) map[string]any {
	data := map[string]any{
		"job_id":         job.ID.String(),
		"status":         job.Status,
		"processed_rows": job.ProcessedRows,
		"error_rows":     job.ErrorRows,
	}
	if job.TotalRows != nil {
		data["total_rows"] = *job.TotalRows
	}
	if job.StartedAt != nil {
		data["started_at"] = job.StartedAt
	}
	if job.FinishedAt != nil {
		data["finished_at"] = job.FinishedAt
	}
	return data
}

func connectedPayload(jobID string) map[string]any {
	if jobID == "" {
		return map[string]any{}
	}
	return map[string]any{"job_id": jobID}
}

func writeSSEEvent(w http.ResponseWriter, event string, data map[string]any) {
	body, err := json.Marshal(data)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\n"))
	w.Write([]byte("data: "))
	w.Write(body)
	w.Write([]byte("\n\n"))
}
