package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/export"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

const defaultWaitTimeout = 10 * time.Minute

// createExport queues an export. A body carrying clips is exported as
// given; otherwise the live timeline and media library are snapshotted.
func (s *Server) createExport(c *gin.Context) {
	var req export.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	var (
		job *models.ExportJob
		err error
	)
	if len(req.Clips) > 0 {
		job, err = s.exports.EnqueueExport(req)
	} else {
		s.withModel(func(m *timeline.Model) {
			job, err = s.exports.EnqueueFromModel(m, s.media, req)
		})
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listExports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs":   s.exports.Jobs(),
		"paused": s.exports.Paused(),
	})
}

func (s *Server) getExport(c *gin.Context) {
	job, ok := s.exports.Job(c.Param("id"))
	if !ok {
		respondError(c, export.ErrJobNotFound)
		return
	}
	c.JSON(http.StatusOK, job)
}

// waitExport blocks until the job is terminal, the timeout passes or the
// client goes away. A job still running at the timeout is answered with
// 202 and its current state.
func (s *Server) waitExport(c *gin.Context) {
	id := c.Param("id")
	timeout := defaultWaitTimeout
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timeout must be a positive duration"})
			return
		}
		timeout = d
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	result, err := s.exports.AwaitJob(ctx, id)
	job, ok := s.exports.Job(id)
	switch {
	case errors.Is(err, export.ErrJobNotFound) || !ok:
		respondError(c, export.ErrJobNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusAccepted, gin.H{"job": job})
	case errors.Is(err, context.Canceled):
		// Client disconnected.
		c.Status(499)
	case err != nil:
		c.JSON(http.StatusOK, gin.H{
			"job":       job,
			"cancelled": export.IsCancelled(err),
			"error":     err.Error(),
		})
	default:
		c.JSON(http.StatusOK, gin.H{"job": job, "result": result})
	}
}

func (s *Server) cancelExport(c *gin.Context) {
	job, err := s.exports.CancelJob(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) retryExport(c *gin.Context) {
	job, err := s.exports.RetryJob(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) pauseQueue(c *gin.Context) {
	s.exports.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) resumeQueue(c *gin.Context) {
	s.exports.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// History

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Export history is not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must not be negative"})
		return
	}

	records, err := s.history.ListExports(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"exports": records,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) getHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Export history is not configured"})
		return
	}
	rec, err := s.history.GetExport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Export history is not configured"})
		return
	}
	if err := s.history.DeleteExport(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
