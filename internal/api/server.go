// Package api implements the HTTP surface at the boundary of the
// core: POST/GET /imports and the GET /imports/stream SSE feed.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tabimport/internal/eventbus"
	"tabimport/internal/jobs"
	"tabimport/internal/submit"
	"tabimport/internal/templates"
)

// Server wires handlers to the Job Store, Submitter, Template Store, and
// Event Bus. Jobs, Templates, Submitter and Bus are required. A zero
// Heartbeat falls back to 30s, and a zero MaxUpload disables the size
// check.
type Server struct {
	Jobs       *jobs.Store
	Templates  *templates.Store
	Submitter  *submit.Submitter
	Bus        *eventbus.Bus
	Log        zerolog.Logger
	Heartbeat  time.Duration
	MaxUpload  int64
}

// RegisterRoutes attaches handlers to the gin engine.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	group := router.Group("/imports")
	{
		group.POST("", s.handleCreateImport)
		group.GET("", s.handleListImports)
		group.GET("/stream", s.handleStream)
		group.GET("/:id", s.handleGetImport)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// NewRouter builds a gin.Engine with the Server's routes attached.
func NewRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s.RegisterRoutes(router)
	return router
}
