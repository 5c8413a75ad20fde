package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

const (
	progressBuffer    = 64
	keepaliveInterval = 15 * time.Second
)

// streamProgress relays progress events as server-sent events until the
// client disconnects. ?job_id= narrows the stream to one job. A client
// that falls behind loses intermediate events; the next one carries the
// current percent anyway.
func (s *Server) streamProgress(c *gin.Context) {
	jobID := c.Query("job_id")
	events := make(chan models.ProgressEvent, progressBuffer)

	unsubscribe := s.exports.Subscribe(func(ev models.ProgressEvent) {
		if jobID != "" && ev.JobID != jobID {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	metrics.ProgressSubscribers.Inc()
	defer metrics.ProgressSubscribers.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Current state first, so a late subscriber does not start blank.
	for _, job := range s.exports.Jobs() {
		if jobID != "" && job.ID != jobID {
			continue
		}
		c.SSEvent("progress", progressOf(job))
	}
	c.Writer.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent("progress", ev)
			return true
		case <-keepalive.C:
			c.SSEvent("keepalive", gin.H{"time": time.Now().Unix()})
			return true
		}
	})
}

func progressOf(job *models.ExportJob) models.ProgressEvent {
	return models.ProgressEvent{
		JobID:      job.ID,
		Status:     job.Status,
		Stage:      job.Stage,
		Percent:    job.Progress,
		ETASeconds: job.ETASeconds,
	}
}
