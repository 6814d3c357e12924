package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"foodforge/internal/auth"
)

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by client address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// SessionOrIP keys authenticated requests by subject, so every scanning
// station gets its own budget even behind one NAT. Others fall back to ClientIP.
func SessionOrIP(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Subject != "" {
		return "sub:" + claims.Subject
	}
	return ClientIP(c)
}

// KeyedLimiter holds one token bucket per key.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	calls      int
}

const sweepEvery = 1024

// NewKeyedLimiter creates a limiter refilling perMinute tokens per minute up
// to burst per key.
func NewKeyedLimiter(burst, perMinute int) *KeyedLimiter {
	if burst <= 0 {
		burst = max(1, perMinute)
	}
	return &KeyedLimiter{
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      burst,
		idle:       10 * time.Minute,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
	}
}

// Middleware returns a gin handler enforcing the limit per key.
func (l *KeyedLimiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry := l.Allow(key(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket. When empty it reports how long
// until the next token.
func (l *KeyedLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.maybeEvict(now)

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.lastAccess[key] = now

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// maybeEvict drops limiters idle long enough to have refilled completely.
func (l *KeyedLimiter) maybeEvict(now time.Time) {
	l.calls++
	if l.calls < sweepEvery {
		return
	}
	l.calls = 0
	cutoff := now.Add(-l.idle)
	for k, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.limiters, k)
			delete(l.lastAccess, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
