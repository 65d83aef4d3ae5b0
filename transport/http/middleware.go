package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flarexio/blograg"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags each request with an ID, taken from the
// X-Request-ID header when the client sends one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Header(RequestIDHeader, id)

		ctx := context.WithValue(c.Request.Context(), blograg.RequestID, id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// INCR and EXPIRE run atomically, so the window starts with the first request.
var limitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[2])
end

if current > tonumber(ARGV[1]) then
    return 0
end

return 1
`)

// RateLimitMiddleware allows each client IP at most limit requests per
// window. Requests pass when redis cannot be reached.
func RateLimitMiddleware(rdb redis.Scripter, limit int, window time.Duration) gin.HandlerFunc {
	log := zap.L().With(
		zap.String("middleware", "rate_limit"),
	)

	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	return func(c *gin.Context) {
		key := "blograg:limit:" + c.ClientIP()

		allowed, err := limitScript.Run(c.Request.Context(), rdb, []string{key}, limit, seconds).Int()
		if err != nil {
			log.Warn(err.Error(), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		if allowed == 0 {
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.String(http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
