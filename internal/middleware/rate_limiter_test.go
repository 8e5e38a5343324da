package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedisLimiter creates a rate limiter with miniredis for testing
func setupTestRedisLimiter(t *testing.T, config RateLimiterConfig) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisLimiter(client, config), mr
}

func limitedRouter(l Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(l))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func requestFrom(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRedisLimiter_BlocksRequestsOverLimit(t *testing.T) {
	rl, _ := setupTestRedisLimiter(t, RateLimiterConfig{MaxRequests: 5, Window: time.Minute})
	router := limitedRouter(rl)

	for i := 0; i < 5; i++ {
		w := requestFrom(router, "192.168.1.1")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := requestFrom(router, "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "6th request should be rate limited")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "too many requests")
}

func TestRedisLimiter_DifferentIPsIndependent(t *testing.T) {
	rl, _ := setupTestRedisLimiter(t, RateLimiterConfig{MaxRequests: 3, Window: time.Minute})
	router := limitedRouter(rl)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.168.1.1").Code)
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.168.1.2").Code, "IP2 has its own quota")
	}
	assert.Equal(t, http.StatusTooManyRequests, requestFrom(router, "192.168.1.1").Code)
}

func TestRedisLimiter_WindowExpiry(t *testing.T) {
	rl, mr := setupTestRedisLimiter(t, RateLimiterConfig{MaxRequests: 2, Window: time.Second})
	ctx := context.Background()
	ip := "192.168.1.100"

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.Allow(ctx, ip)
		require.NoError(t, err)
		assert.True(t, allowed, "Request %d should be allowed", i+1)
	}

	allowed, retryAfter, err := rl.Allow(ctx, ip)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	mr.FastForward(2 * time.Second)

	allowed, _, err = rl.Allow(ctx, ip)
	require.NoError(t, err)
	assert.True(t, allowed, "Request should be allowed after window expires")
}

func TestRedisLimiter_BlockTimeOutlastsWindow(t *testing.T) {
	rl, mr := setupTestRedisLimiter(t, RateLimiterConfig{
		MaxRequests: 1,
		Window:      time.Second,
		BlockTime:   time.Minute,
	})
	ctx := context.Background()
	ip := "10.0.0.9"

	allowed, _, err := rl.Allow(ctx, ip)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, retryAfter, err := rl.Allow(ctx, ip)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retryAfter)

	mr.FastForward(2 * time.Second)
	allowed, _, err = rl.Allow(ctx, ip)
	require.NoError(t, err)
	assert.False(t, allowed, "still blocked after the window resets")

	mr.FastForward(time.Minute)
	allowed, _, err = rl.Allow(ctx, ip)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	rl, mr := setupTestRedisLimiter(t, RateLimiterConfig{MaxRequests: 1, Window: time.Minute})
	router := limitedRouter(rl)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, requestFrom(router, "192.168.1.1").Code)
	}
}

func TestRedisLimiter_ConcurrentRequests(t *testing.T) {
	rl, _ := setupTestRedisLimiter(t, RateLimiterConfig{MaxRequests: 10, Window: time.Minute})
	router := limitedRouter(rl)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		okCount int
		tooMany int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := requestFrom(router, "192.168.1.1").Code
			mu.Lock()
			defer mu.Unlock()
			switch code {
			case http.StatusOK:
				okCount++
			case http.StatusTooManyRequests:
				tooMany++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, okCount)
	assert.Equal(t, 10, tooMany)
}

func TestLocalLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewLocalLimiter(RateLimiterConfig{MaxRequests: 2, Window: 2 * time.Second})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	allowed, _, err = l.Allow(ctx, "2.2.2.2")
	require.NoError(t, err)
	assert.True(t, allowed, "other clients are unaffected")

	now = now.Add(time.Second)
	allowed, _, err = l.Allow(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, allowed, "one token refills per second")
}

func TestLocalLimiter_Sweep(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewLocalLimiter(RateLimiterConfig{MaxRequests: 1, Window: time.Second})
	l.now = func() time.Time { return now }

	_, _, _ = l.Allow(context.Background(), "1.1.1.1")
	now = now.Add(10 * time.Second)
	l.Sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.clients)
}
