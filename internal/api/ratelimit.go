package api

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nclamvn/prismy-production-sub002/lru"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RPS     int // requests per second
	Burst   int // burst size
	Clients int // tracked clients; the least recently seen are forgotten
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(rps, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(rps),
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// NewRateLimitMiddleware returns a per-client token-bucket rate limiter.
func NewRateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	if cfg.Burst < 1 {
		cfg.Burst = cfg.RPS
	}
	if cfg.Clients < 1 {
		cfg.Clients = 10000
	}
	buckets := lru.New[string, *tokenBucket](cfg.Clients, nil)

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		bucket, _, _ := buckets.GetOrAdd(c.IP(), func() (*tokenBucket, error) {
			return newTokenBucket(cfg.RPS, cfg.Burst), nil
		})
		if !bucket.allow(time.Now()) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}
