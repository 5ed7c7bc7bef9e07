package middleware

import (
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request. Health checks and the metrics
// scrape are logged at debug level.
func RequestLogger(quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		}
		if query != "" {
			fields["query"] = query
		}
		if traceID := GetTraceID(c); traceID != "" {
			fields["trace_id"] = traceID
		}
		if user := GetUsername(c); user != "" {
			fields["user"] = user
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("server error")
		case status >= 400:
			entry.Warn("client error")
		case skip[path]:
			entry.Debug("request completed")
		default:
			entry.Info("request completed")
		}
	}
}
