package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorIdleTTL   = 10 * time.Minute
	sweepEvery       = time.Minute
	defaultRetryWait = time.Second
)

// KeyFunc names the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByIP buckets by client IP as resolved by gin, so trusted proxy settings
// apply.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key. Buckets idle for ten
// minutes are dropped by a sweep that piggybacks on lookups. Safe for
// concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc

	// ExemptPaths are exact paths never limited, such as probes.
	ExemptPaths map[string]struct{}

	mu        sync.Mutex
	visitors  map[string]*visitor
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst. rps <= 0 disables limiting; burst < 1 becomes 1; a nil keyFn keys
// by client IP.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, exempt ...string) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if keyFn == nil {
		keyFn = KeyByIP()
	}
	ex := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		ex[p] = struct{}{}
	}
	return &RateLimiter{
		limit:       limit,
		burst:       burst,
		keyFn:       keyFn,
		ExemptPaths: ex,
		visitors:    make(map[string]*visitor),
		idleTTL:     visitorIdleTTL,
		now:         time.Now,
	}
}

// bucket returns the limiter for key, creating it on first use.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= sweepEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.idleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay; replays do not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyRateBypass)
	bypass, _ := b.(bool)
	return bypass
}

// Handler returns the middleware. A rejected request gets 429 with a
// Retry-After equal to the wait until its bucket holds a token again.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit == rate.Inf || IsRateBypass(c) {
			c.Next()
			return
		}
		if _, ok := rl.ExemptPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		lim := rl.bucket(rl.keyFn(c))
		now := rl.now()
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		rateLimited.Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"detail":     "rate limit exceeded",
		})
	}
}

// retryAfter is the whole number of seconds, at least one, until lim can
// grant a token. The trial reservation is returned to the bucket.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	wait := defaultRetryWait
	if r := lim.ReserveN(now, 1); r.OK() {
		wait = r.DelayFrom(now)
		r.CancelAt(now)
	}
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
