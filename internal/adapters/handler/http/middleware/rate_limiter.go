package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-routines/internal/metrics"
)

// rateLimitKey buckets authenticated callers by user id, everyone else by IP.
func rateLimitKey(c *gin.Context) (key, scope string) {
	if userID, ok := GetUserID(c); ok {
		return "rate_limit:user:" + userID, "user"
	}
	return "rate_limit:ip:" + c.ClientIP(), "ip"
}

// RateLimiterMiddleware is a fixed window counter in Redis. It fails open
// when Redis is unreachable.
func RateLimiterMiddleware(rdb redis.Cmdable, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key, scope := rateLimitKey(c)

		var incr *redis.IntCmd
		var ttlCmd *redis.DurationCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			ttlCmd = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			log.Printf("[RATE] Redis error, limiter skipped for %s: %v", key, err)
			c.Next()
			return
		}

		count := incr.Val()
		ttl := ttlCmd.Val()
		if ttl <= 0 {
			ttl = window
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", max(0, int64(limit)-count)))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))

		if count > int64(limit) {
			metrics.RateLimited.WithLabelValues(scope).Inc()
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":     "error",
				"message":    "Too many requests. Slow down!",
				"retry_in_s": int(ttl.Seconds()),
			})
			return
		}

		c.Next()
	}
}
