// Package httpmiddleware holds the gin middleware shared by the API.
package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc names the bucket a request draws from. An empty key falls back to
// the client IP.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by the address gin resolves for them.
func ClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// Limiter is an in-memory token bucket per key, refilled continuously at
// perMinute tokens a minute up to burst.
type Limiter struct {
	burst     float64
	perMinute float64
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter. A non-positive burst defaults to perMinute;
// a non-positive perMinute disables limiting.
func NewLimiter(burst, perMinute int) *Limiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		burst:     float64(burst),
		perMinute: float64(perMinute),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// Middleware rejects requests whose bucket is empty with 429 and a
// Retry-After hint.
func (l *Limiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.perMinute <= 0 {
			c.Next()
			return
		}
		k := key(c)
		if k == "" {
			k = ClientIP(c)
		}
		wait, ok := l.take(k)
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}

// take spends one token from key's bucket, or reports how long until one
// is available.
func (l *Limiter) take(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.seen); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+elapsed.Minutes()*l.perMinute)
		b.seen = now
	}
	if b.tokens < 1 {
		missing := 1 - b.tokens
		return time.Duration(missing / l.perMinute * float64(time.Minute)), false
	}
	b.tokens--
	return 0, true
}
