package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/metrics"
)

// limiterIdleTTL is how long a client's bucket outlives its last request.
// A bucket idle that long has refilled, so dropping it loses nothing.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter hands out one token bucket per client address. Buckets idle
// for longer than limiterIdleTTL are swept on a later Allow.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per client with a burst of the
// same size. A non-positive rate disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	l := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Inf,
		now:      time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	l.lastSweep = l.now()
	return l
}

// WithClock replaces the clock used to age idle buckets.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.lastSweep = now()
	return l
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		l.sweep(now)
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	limiter := entry.limiter
	l.mu.Unlock()
	return limiter.Allow()
}

// sweep drops idle buckets; mu must be held.
func (l *RateLimiter) sweep(now time.Time) {
	threshold := now.Add(-limiterIdleTTL)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(threshold) {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// clients reports how many buckets are held.
func (l *RateLimiter) clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			metrics.LoginRateLimited.Inc()
			helpers.RespondWithError(c, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
			return
		}
		c.Next()
	}
}
