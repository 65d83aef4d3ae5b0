package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func limitedRouter(rdb redis.Scripter, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(rdb, limit, time.Minute))
	r.GET("/health", HealthHandler())
	return r
}

func get(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	defer rdb.Close()

	r := limitedRouter(rdb, 2)

	assert := assert.New(t)
	assert.Equal(http.StatusOK, get(r).Code)
	assert.Equal(http.StatusOK, get(r).Code)

	w := get(r)
	assert.Equal(http.StatusTooManyRequests, w.Code)
	assert.Equal("60", w.Header().Get("Retry-After"))

	ttl, err := rdb.TTL(ctx, "blograg:limit:192.0.2.1").Result()
	require.NoError(t, err)
	assert.Greater(ttl, time.Duration(0))
}

func TestRateLimitMiddlewarePassesWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	r := limitedRouter(rdb, 1)

	assert := assert.New(t)
	assert.Equal(http.StatusOK, get(r).Code)
	assert.Equal(http.StatusOK, get(r).Code)
}
