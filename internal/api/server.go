// Package api exposes the editor timeline and the export queue over HTTP
// for the UI layer.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/export"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/internal/upload"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// History is the persisted export history, when a database is configured.
type History interface {
	GetExport(ctx context.Context, id string) (*models.ExportRecord, error)
	ListExports(ctx context.Context, limit, offset int) ([]*models.ExportRecord, error)
	DeleteExport(ctx context.Context, id string) error
}

// HealthChecker is a dependency /health reports on.
type HealthChecker func(ctx context.Context) error

// Deps wires a Server.
type Deps struct {
	Model        *timeline.Model
	Media        *timeline.MediaLibrary
	Orchestrator *export.Orchestrator
	History      History
	// Uploads enables chunked uploads of large recordings.
	Uploads      *upload.Service
	Limiter      *middleware.RateLimiter
	Logger       *logging.Logger
	Checks       map[string]HealthChecker
	// MaxUploadBytes caps in-memory media uploads. Zero means 512 MiB.
	MaxUploadBytes int64
}

// Server holds the handlers. The timeline model is not safe for concurrent
// use, so every handler touching it goes through modelMu.
type Server struct {
	modelMu sync.Mutex
	model   *timeline.Model

	media     *timeline.MediaLibrary
	exports   *export.Orchestrator
	history   History
	limiter   *middleware.RateLimiter
	logger    *logging.Logger
	checks    map[string]HealthChecker
	maxUpload int64

	uploads *upload.Service
	// mime types given at initiation, keyed by upload id
	uploadTypesMu sync.Mutex
	uploadTypes   map[string]string
}

// New creates the API server.
func New(deps Deps) (*Server, error) {
	if deps.Model == nil || deps.Media == nil || deps.Orchestrator == nil {
		return nil, errors.New("api: model, media library and orchestrator are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 512 << 20
	}
	return &Server{
		model:       deps.Model,
		media:       deps.Media,
		exports:     deps.Orchestrator,
		history:     deps.History,
		limiter:     deps.Limiter,
		logger:      logger,
		checks:      deps.Checks,
		maxUpload:   maxUpload,
		uploads:     deps.Uploads,
		uploadTypes: make(map[string]string),
	}, nil
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(s.logger), middleware.Tracing())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	{
		// Timeline
		v1.GET("/timeline", s.getTimeline)
		v1.PUT("/timeline/playhead", s.setPlayhead)
		v1.PUT("/timeline/selection", s.selectClip)

		v1.POST("/tracks", s.addTrack)
		v1.PATCH("/tracks/:id", s.updateTrack)
		v1.DELETE("/tracks/:id", s.removeTrack)

		v1.POST("/clips", s.addClip)
		v1.PATCH("/clips/:id", s.updateClip)
		v1.DELETE("/clips/:id", s.removeClip)
		v1.POST("/clips/:id/trim", s.trimClip)
		v1.POST("/clips/:id/split", s.splitClip)
		v1.POST("/clips/:id/move", s.moveClip)
		v1.POST("/clips/:id/reorder", s.reorderClip)

		v1.PUT("/transitions", s.setTransition)
		v1.PATCH("/transitions/:id", s.updateTransition)
		v1.DELETE("/transitions/:id", s.removeTransition)

		// Media
		v1.GET("/media", s.listMedia)
		v1.POST("/media", s.addMedia)
		v1.POST("/media/upload", s.uploadMedia)
		v1.DELETE("/media/:id", s.removeMedia)

		v1.POST("/uploads", s.initiateUpload)
		v1.GET("/uploads/:id", s.getUpload)
		v1.PUT("/uploads/:id/parts/:part", s.uploadPart)
		v1.POST("/uploads/:id/complete", s.completeUpload)
		v1.DELETE("/uploads/:id", s.abortUpload)

		// Exports
		enqueue := []gin.HandlerFunc{}
		if s.limiter != nil {
			enqueue = append(enqueue, middleware.RateLimit(s.limiter))
		}
		v1.POST("/exports", append(enqueue, s.createExport)...)
		v1.GET("/exports", s.listExports)
		v1.GET("/exports/progress", s.streamProgress)
		v1.GET("/exports/:id", s.getExport)
		v1.GET("/exports/:id/wait", s.waitExport)
		v1.POST("/exports/:id/cancel", s.cancelExport)
		v1.POST("/exports/:id/retry", append(enqueue, s.retryExport)...)

		v1.POST("/queue/pause", s.pauseQueue)
		v1.POST("/queue/resume", s.resumeQueue)

		// History
		v1.GET("/history", s.listHistory)
		v1.GET("/history/:id", s.getHistory)
		v1.DELETE("/history/:id", s.deleteHistory)
	}

	return router
}

// withModel runs fn with exclusive access to the timeline.
func (s *Server) withModel(fn func(m *timeline.Model)) {
	s.modelMu.Lock()
	defer s.modelMu.Unlock()
	fn(s.model)
}

// Health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"component": name,
				"error":     err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"paused": s.exports.Paused(),
	})
}
