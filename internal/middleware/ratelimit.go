package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"stagesync/internal/config"
	"stagesync/internal/metrics"

	"github.com/gin-gonic/gin"
)

// tokenBucket 令牌桶
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	ratePerSec float64
	burst      float64
}

func newBucket(rpm, burst int, now time.Time) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm
	}
	return &tokenBucket{
		tokens:     float64(burst),
		lastRefill: now,
		ratePerSec: float64(rpm) / 60.0,
		burst:      float64(burst),
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// limiter 一组按客户端 IP 区分的令牌桶
type limiter struct {
	prefix string
	rpm    int
	burst  int

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func newLimiter(prefix string, rpm, burst int) *limiter {
	return &limiter{prefix: prefix, rpm: rpm, burst: burst, buckets: make(map[string]*tokenBucket)}
}

func (l *limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(l.rpm, l.burst, now)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.allow(now)
}

var rateLimitNow = time.Now

// RateLimitMiddleware 按 IP 限流。Paths 中第一个前缀匹配的规则优先，否则使用全局限额。
// 被拒绝的请求计入 stagesync_rate_limit_drops_total。
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var paths []*limiter
	for _, p := range rl.Paths {
		if p.Prefix == "" || p.RequestsPerMinute <= 0 {
			continue
		}
		paths = append(paths, newLimiter(p.Prefix, p.RequestsPerMinute, p.Burst))
	}
	var global *limiter
	if rl.RequestsPerMinute > 0 {
		global = newLimiter("global", rl.RequestsPerMinute, rl.Burst)
	}

	reject := func(c *gin.Context, prefix string) {
		metrics.IncRateLimitDrop(prefix)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "Too Many Requests",
			"message": "rate limit exceeded",
		})
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		now := rateLimitNow()
		path := c.Request.URL.Path

		for _, l := range paths {
			if strings.HasPrefix(path, l.prefix) {
				if !l.allow(key, now) {
					reject(c, l.prefix)
					return
				}
				c.Next()
				return
			}
		}
		if global != nil && !global.allow(key, now) {
			reject(c, global.prefix)
			return
		}
		c.Next()
	}
}
