package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/database"
	"github.com/therealutkarshpriyadarshi/vedit/internal/export"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/internal/upload"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, timeline.ErrClipNotFound),
		errors.Is(err, timeline.ErrTrackNotFound),
		errors.Is(err, timeline.ErrTransitionNotFound),
		errors.Is(err, export.ErrJobNotFound),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, upload.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrExpired):
		return http.StatusGone
	case errors.Is(err, timeline.ErrTrackLocked):
		return http.StatusLocked
	case errors.Is(err, export.ErrInvalidOptions),
		errors.Is(err, timeline.ErrInvalidTiming),
		errors.Is(err, timeline.ErrInvalidPosition),
		errors.Is(err, upload.ErrInvalidPart),
		errors.Is(err, upload.ErrIncomplete):
		return http.StatusUnprocessableEntity
	case timeline.IsRejected(err),
		errors.Is(err, export.ErrJobFinished),
		errors.Is(err, export.ErrNotRetryable),
		errors.Is(err, upload.ErrNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var mr *timeline.MutationRejected
	if errors.As(err, &mr) {
		body["operation"] = mr.Op
		body["reason"] = mr.Reason.Error()
		if len(mr.IDs) > 0 {
			body["ids"] = mr.IDs
		}
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
