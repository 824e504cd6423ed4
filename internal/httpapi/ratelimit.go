package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/syncline/internal/auth"
)

// tokenBucket is a per-caller budget: capacity tokens, refilled continuously
// at the configured rate. Bursts spend down the bucket; sustained traffic is
// held to the refill rate.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// take consumes one token if available. When denied it reports how long until
// the next token exists, for the Retry-After header.
func (b *tokenBucket) take(now time.Time) (bool, int, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, int(b.tokens), 0
	}
	wait := time.Duration((1.0 - b.tokens) / b.refillRate * float64(time.Second))
	return false, 0, wait
}

// RateLimiter holds one token bucket per caller. Buckets idle for an hour are
// dropped during access, so the map stays bounded without a janitor goroutine.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	rps       float64
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

const bucketIdleEvict = time.Hour

// NewRateLimiter builds a limiter refilling rps tokens per second with a
// bucket capacity of burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		rps:       rps,
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow spends one token for key. Returns whether the request may proceed,
// the remaining tokens, and the wait until the next token when denied.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	rl.sweepLocked(now)
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{
			tokens:     float64(rl.burst),
			capacity:   float64(rl.burst),
			refillRate: rl.rps,
			lastRefill: now,
		}
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.take(now)
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < 10*time.Minute {
		return
	}
	for key, bucket := range rl.buckets {
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastRefill) > bucketIdleEvict
		bucket.mu.Unlock()
		if idle {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Middleware enforces the limit per caller subject, falling back to the
// client address for anonymous requests. Denials are plain 429s with a
// Retry-After: rate limiting is a transport concern, outside the mutation
// error taxonomy.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := auth.CallerFrom(r.Context()).Subject
		if key == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			key = host
		}

		allowed, remaining, wait := rl.Allow(key)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Burst", strconv.Itoa(rl.burst))

		if !allowed {
			retryAfter := int(wait.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			log.Ctx(r.Context()).Warn().
				Str("caller", key).
				Str("path", r.URL.Path).
				Int("retryAfter", retryAfter).
				Msg("rate limit exceeded")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
