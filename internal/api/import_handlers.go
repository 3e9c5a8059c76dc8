package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabimport/internal/jobs"
	"tabimport/internal/mapping"
)

// handleCreateImport implements POST /imports: multipart form, field
// `file`, optional `mapping_config` (JSON) and `template_id`. An
// inline mapping_config is persisted as an ImportTemplate so the
// worker can re-load it by job_id -> template_id, the same path a
// pre-registered template_id takes.
func (s *Server) handleCreateImport(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	if s.MaxUpload > 0 && fileHeader.Size > s.MaxUpload {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file_too_large"})
		return
	}

	templateID, err := s.resolveTemplateID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := fileHeader.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable_file"})
		return
	}
	defer stream.Close()

	result, err := s.Submitter.Submit(c.Request.Context(), fileHeader.Filename, templateID, stream)
	if err != nil {
		if result == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.Log.Error().Err(err).Str("job_id", result.JobID.String()).Msg("submit failed past job creation")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "job_id": result.JobID})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"job_id": result.JobID, "status": "pending"})
}

// resolveTemplateID honors an explicit template_id field, or registers
// an inline mapping_config as a new ad-hoc ImportTemplate, or returns
// nil when neither is supplied (the built-in vehicle preset applies).
func (s *Server) resolveTemplateID(c *gin.Context) (*uuid.UUID, error) {
	if raw := c.Request.FormValue("template_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errInvalidTemplateID
		}
		return &id, nil
	}

	raw := c.Request.FormValue("mapping_config")
	if raw == "" {
		return nil, nil
	}

	var cfg mapping.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, errInvalidMappingConfig
	}
	tmpl, err := s.Templates.Create(c.Request.Context(), "adhoc-"+uuid.NewString(), &cfg)
	if err != nil {
		return nil, err
	}
	return &tmpl.ID, nil
}

// handleListImports implements GET /imports: query skip, limit,
// status. Returns job summaries newest first.
func (s *Server) handleListImports(c *gin.Context) {
	skip := parseIntDefault(c.Query("skip"), 0)
	limit := parseIntDefault(c.Query("limit"), 50)
	status := jobs.Status(c.Query("status"))

	list, err := s.Jobs.List(c.Request.Context(), skip, limit, status)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

// handleGetImport implements GET /imports/{id}: job summary plus
// every log line.
func (s *Server) handleGetImport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_job_id"})
		return
	}

	job, err := s.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		if err == jobs.ErrNotFound {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job_not_found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logs, err := s.Jobs.Logs(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "logs": logs})
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
