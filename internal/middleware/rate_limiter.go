package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Baaaki/songshare/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window (e.g., 1 minute)
	BlockTime   time.Duration // How long to block after exceeding limit
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimit applies l per client IP. Limiter errors let the request through.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// RedisLimiter is a fixed-window counter shared by every server instance.
// A client that exceeds the window is blocked for BlockTime.
type RedisLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

func NewRedisLimiter(redisClient *redis.Client, config RateLimiterConfig) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		config: config,
	}
}

func (rl *RedisLimiter) Allow(ctx context.Context, ip string) (bool, time.Duration, error) {
	blockKey := fmt.Sprintf("ratelimit:block:%s", ip)
	countKey := fmt.Sprintf("ratelimit:%s", ip)

	blockTTL, err := rl.redis.TTL(ctx, blockKey).Result()
	if err != nil {
		return false, 0, err
	}
	if blockTTL > 0 {
		return false, blockTTL, nil
	}

	// INCR and EXPIRE NX in one round trip; the window starts at the first hit.
	var incr *redis.IntCmd
	_, err = rl.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, countKey)
		pipe.ExpireNX(ctx, countKey, rl.config.Window)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if incr.Val() <= int64(rl.config.MaxRequests) {
		return true, 0, nil
	}

	if rl.config.BlockTime > 0 {
		if err := rl.redis.Set(ctx, blockKey, 1, rl.config.BlockTime).Err(); err != nil {
			return false, 0, err
		}
		return false, rl.config.BlockTime, nil
	}

	ttl, err := rl.redis.TTL(ctx, countKey).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.config.Window
	}
	return false, ttl, nil
}

// LocalLimiter is an in-process token bucket per client, used when Redis
// is not configured.
type LocalLimiter struct {
	mu      sync.Mutex
	clients map[string]*localClient
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type localClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(config RateLimiterConfig) *LocalLimiter {
	burst := config.MaxRequests
	if burst < 1 {
		burst = 1
	}
	window := config.Window
	if window <= 0 {
		window = time.Minute
	}
	return &LocalLimiter{
		clients: make(map[string]*localClient),
		limit:   rate.Limit(float64(burst) / window.Seconds()),
		burst:   burst,
		idle:    3 * window,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, ip string) (bool, time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	client, ok := l.clients[ip]
	if !ok {
		client = &localClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = client
	}
	client.lastSeen = now
	l.mu.Unlock()

	r := client.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Sweep forgets clients idle for longer than three windows.
func (l *LocalLimiter) Sweep() {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, client := range l.clients {
		if client.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *LocalLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
