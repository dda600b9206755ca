package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/logger"
)

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	// RequestsPerSecond 每个 key 每秒允许的请求数（默认 5）
	RequestsPerSecond float64

	// Burst 突发容量（默认 10）
	Burst int

	// KeyFunc 限流 key（默认客户端 IP）
	KeyFunc func(c *gin.Context) string

	// OnLimited 被限流时的响应（默认 429 纯文本）
	OnLimited gin.HandlerFunc

	Logger logger.Logger

	// BucketExpiry 桶超过该时间无访问则清理（默认 10 分钟）
	BucketExpiry time.Duration

	// Clock 时钟，测试时注入
	Clock func() time.Time
}

func defaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		BucketExpiry:      10 * time.Minute,
	}
}

// tokenBucket 令牌桶，由 limiter 加锁访问
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// limiter 按 key 划分的令牌桶集合
type limiter struct {
	rate   float64
	burst  float64
	expiry time.Duration

	mu          sync.Mutex
	buckets     map[string]*tokenBucket
	lastCleanup time.Time
}

// allow 取一个令牌，顺带清理过期桶
func (l *limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > l.expiry {
		for k, b := range l.buckets {
			if now.Sub(b.lastRefill) > l.expiry {
				delete(l.buckets, k)
			}
		}
		l.lastCleanup = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}

	b.tokens = min(l.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter 令牌桶限流中间件，默认按客户端 IP 限流
//
// 用于保护升级端点，防止单个来源反复建连。
func RateLimiter(cfgs ...*RateLimiterConfig) gin.HandlerFunc {
	cfg := defaultRateLimiterConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.OnLimited == nil {
		cfg.OnLimited = func(c *gin.Context) {
			c.String(http.StatusTooManyRequests, "too many requests")
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = 10 * time.Minute
	}

	l := &limiter{
		rate:        cfg.RequestsPerSecond,
		burst:       float64(cfg.Burst),
		expiry:      cfg.BucketExpiry,
		buckets:     make(map[string]*tokenBucket),
		lastCleanup: cfg.Clock(),
	}

	return func(c *gin.Context) {
		key := cfg.KeyFunc(c)
		if l.allow(key, cfg.Clock()) {
			c.Next()
			return
		}

		cfg.Logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("path", c.Request.URL.Path),
			zap.Float64("rate", cfg.RequestsPerSecond),
		)
		c.Abort()
		cfg.OnLimited(c)
	}
}
