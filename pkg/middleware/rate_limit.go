package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	ctxPkg "github.com/bizzlechizzle/aupat/pkg/context"
)

// limiterIdle 超过该时长未使用的 limiter 在下次清扫时移除.
const limiterIdle = 10 * time.Minute

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet 按 key 维护独立的令牌桶. 清扫在请求路径上顺带完成，不启动后台 goroutine.
type limiterSet struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	entries   map[string]*keyedLimiter
	lastSweep time.Time
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	return &limiterSet{
		rps:       rate.Limit(rps),
		burst:     burst,
		entries:   make(map[string]*keyedLimiter),
		lastSweep: time.Now(),
	}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > limiterIdle {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(s.entries, k)
			}
		}

		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &keyedLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = e
	}

	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

// RateLimitMiddleware 限流中间件. Key 取值:
//   - global: 全局共享一个令牌桶
//   - ip: 按客户端 IP
//   - device: 按设备标识，未携带时退回 IP
//   - header:Name: 按指定请求头，缺失时退回 IP
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	mode := strings.TrimSpace(cfg.Key)

	if mode == "" || strings.EqualFold(mode, "global") {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

		return func(c *gin.Context) {
			if !limiter.Allow() {
				tooMany(c)
				return
			}

			c.Next()
		}
	}

	set := newLimiterSet(cfg.RPS, cfg.Burst)

	return func(c *gin.Context) {
		if !set.allow(limitKey(c, mode), time.Now()) {
			tooMany(c)
			return
		}

		c.Next()
	}
}

func limitKey(c *gin.Context, mode string) string {
	var key string

	switch {
	case strings.EqualFold(mode, "device"):
		key = ctxPkg.DeviceID(c.Request.Context())
		if key == "" {
			key = c.GetHeader(HeaderDeviceID)
		}
	case len(mode) > len("header:") && strings.EqualFold(mode[:len("header:")], "header:"):
		key = c.GetHeader(mode[len("header:"):])
	}

	if key == "" {
		key = c.ClientIP()
	}

	return key
}

func tooMany(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
}
