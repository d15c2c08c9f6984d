package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/logging"
)

// RateLimitConfig configures the API token buckets.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	// IdleTimeout is how long an unused bucket is kept.
	IdleTimeout time.Duration
}

// DefaultRateLimitConfig allows bursts of editor-driven re-renders.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 600,
		BurstSize:         60,
		IdleTimeout:       10 * time.Minute,
	}
}

// RateLimiter implements token bucket rate limiting per client address.
type RateLimiter struct {
	buckets     map[string]*TokenBucket
	bucketMutex sync.Mutex
	config      *RateLimitConfig
	logger      logging.Logger
	now         func() time.Time
	stopCleaner chan struct{}
	stopOnce    sync.Once
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
	lastAccess time.Time
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter creates a limiter; a nil config uses the defaults.
func NewRateLimiter(config *RateLimitConfig, logger logging.Logger) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	rl := &RateLimiter{
		buckets:     make(map[string]*TokenBucket),
		config:      config,
		logger:      logger,
		now:         time.Now,
		stopCleaner: make(chan struct{}),
	}
	if config.Enabled && config.IdleTimeout > 0 {
		go rl.cleanupExpiredBuckets()
	}
	return rl
}

// Check consumes a token for key if one is available.
func (rl *RateLimiter) Check(key string) RateLimitResult {
	if !rl.config.Enabled {
		return RateLimitResult{Allowed: true, Remaining: rl.config.BurstSize}
	}

	rl.bucketMutex.Lock()
	defer rl.bucketMutex.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &TokenBucket{
			tokens:     float64(rl.config.BurstSize),
			capacity:   float64(rl.config.BurstSize),
			perSecond:  float64(rl.config.RequestsPerMinute) / 60,
			lastRefill: now,
		}
		rl.buckets[key] = bucket
	}
	bucket.lastAccess = now
	return bucket.consume(now)
}

func (tb *TokenBucket) consume(now time.Time) RateLimitResult {
	if elapsed := now.Sub(tb.lastRefill).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.perSecond)
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return RateLimitResult{Allowed: true, Remaining: int(tb.tokens)}
	}

	retry := time.Minute
	if tb.perSecond > 0 {
		retry = time.Duration((1 - tb.tokens) / tb.perSecond * float64(time.Second))
	}
	return RateLimitResult{Allowed: false, RetryAfter: retry}
}

func (rl *RateLimiter) cleanupExpiredBuckets() {
	ticker := time.NewTicker(rl.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.performCleanup()
		case <-rl.stopCleaner:
			return
		}
	}
}

func (rl *RateLimiter) performCleanup() {
	rl.bucketMutex.Lock()
	defer rl.bucketMutex.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTimeout)
	for key, bucket := range rl.buckets {
		if bucket.lastAccess.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleaner) })
}

// RateLimitMiddleware rejects requests over the limit with 429.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			result := limiter.Check(clientIP)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.config.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))

			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", max(1, result.RetryAfter.Seconds())))
				limiter.logger.Warn(r.Context(),
					errors.NewValidationError("RATE_LIMIT_EXCEEDED", "rate limit exceeded"),
					"Rate limit exceeded",
					"client_ip", clientIP,
					"path", r.URL.Path)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

