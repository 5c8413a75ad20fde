package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/internal/tracing"
)

// Logger middleware logs request details and records request metrics.
// Streaming endpoints are logged when the stream ends.
func Logger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path += "?" + query
		}

		c.Next()

		latency := time.Since(start)
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), latency.Seconds())
		logger.LogHTTPRequest(c.Request.Method, path, c.ClientIP(), c.Writer.Status(), latency)
	}
}

// Tracing starts a span per request and puts it on the request context.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracing.StartSpan(c.Request.Context(), c.Request.Method+" "+name)
		defer tracing.FinishSpan(span)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		tracing.SetTag(span, "http.status_code", c.Writer.Status())
		if len(c.Errors) > 0 {
			tracing.LogError(span, c.Errors.Last())
		}
	}
}
