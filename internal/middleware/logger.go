package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Logger returns a Gin middleware that logs each request using zap and counts
// it in the request metric.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
