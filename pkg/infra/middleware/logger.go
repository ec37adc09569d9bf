package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	infralog "github.com/kart-io/essay-qa/pkg/infra/logger"
)

// DefaultSkipPaths are not access-logged.
var DefaultSkipPaths = []string{"/healthz", "/metrics"}

// Logger returns a middleware that logs HTTP requests.
func Logger(skipPaths ...string) gin.HandlerFunc {
	if len(skipPaths) == 0 {
		skipPaths = DefaultSkipPaths
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"remote_addr", c.ClientIP(),
			"latency", latency.String(),
			"latency_ms", latency.Milliseconds(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		log := infralog.GetLogger(c.Request.Context())
		if c.Writer.Status() >= 500 {
			log.Errorw("HTTP Request", fields...)
			return
		}
		log.Infow("HTTP Request", fields...)
	}
}
