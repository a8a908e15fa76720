package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter enforces a per-client request budget per minute. With a redis
// client the counting window is shared across API instances; without one,
// or while redis is unreachable, it degrades to a local token bucket.
type Limiter struct {
	perMinute int
	rds       *redis.Client

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewLimiter creates a limiter allowing perMinute requests per client IP.
// rds may be nil.
func NewLimiter(perMinute int, rds *redis.Client) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Limiter{
		perMinute: perMinute,
		rds:       rds,
		state:     make(map[string]*bucket),
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *Limiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(c, ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *Limiter) allow(c *gin.Context, key string) bool {
	if l.rds != nil {
		if ok, err := l.allowShared(c, key); err == nil {
			return ok
		}
	}
	return l.allowLocal(key)
}

// allowShared counts requests in a fixed one-minute window keyed per client,
// so all instances behind a load balancer enforce one budget.
func (l *Limiter) allowShared(c *gin.Context, key string) (bool, error) {
	ctx := c.Request.Context()
	window := time.Now().Unix() / 60
	k := "edtrack:ratelimit:" + key + ":" + strconv.FormatInt(window, 10)
	n, err := l.rds.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		l.rds.Expire(ctx, k, 2*time.Minute)
	}
	return n <= int64(l.perMinute), nil
}

func (l *Limiter) allowLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := time.Now()
	if !ok {
		b = &bucket{tokens: l.perMinute - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.perMinute))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.perMinute {
			b.tokens = l.perMinute
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
