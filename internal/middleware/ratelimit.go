package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	rateLimitMax    = 50
	rateLimitWindow = time.Second
)

// RateLimit enforces a fixed one-second window of 50 requests per client IP
// for requests that are not authenticated. Redis errors let the request through.
func RateLimit(rdb *redis.Client, log *zap.Logger) gin.HandlerFunc {
	return rateLimit(rdb, log, rateLimitMax, time.Now)
}

func rateLimit(rdb *redis.Client, log *zap.Logger, max int64, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || IsAuthenticated(c) || c.GetHeader("Authorization") != "" {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("yapper:rate_limit:%s:%d", ip, now().Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Debug("rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > max {
			log.Warn("rate limited", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      0,
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests, slow down",
				"error":   "Too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}
