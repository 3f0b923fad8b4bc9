// Package ratelimit implements token bucket rate limiting for provider requests.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/serp-rank-tracker/internal/metrics"
)

// Limiter manages per-provider rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	overrides    map[string]Rate
	defaultRate  rate.Limit
	defaultBurst int
}

// Rate is a requests-per-second budget with a burst allowance. RPS <= 0 disables limiting.
type Rate struct {
	RPS   float64
	Burst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// Providers overrides the default budget per provider id.
	Providers map[string]Rate
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r, burst := toLimit(Rate{RPS: cfg.DefaultRPS, Burst: cfg.DefaultBurst})
	overrides := make(map[string]Rate, len(cfg.Providers))
	for id, pr := range cfg.Providers {
		overrides[id] = pr
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		overrides:    overrides,
		defaultRate:  r,
		defaultBurst: burst,
	}
}

func toLimit(r Rate) (rate.Limit, int) {
	limit := rate.Limit(r.RPS)
	if r.RPS <= 0 {
		limit = rate.Inf
	}
	burst := r.Burst
	if burst <= 0 {
		burst = 1
	}
	return limit, burst
}

func (l *Limiter) limiterFor(providerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[providerID]
	if !exists {
		r, burst := l.defaultRate, l.defaultBurst
		if o, ok := l.overrides[providerID]; ok {
			r, burst = toLimit(o)
		}
		limiter = rate.NewLimiter(r, burst)
		l.limiters[providerID] = limiter
	}
	return limiter
}

// Wait blocks until a token is available for the given provider, respecting the context.
func (l *Limiter) Wait(ctx context.Context, providerID string) error {
	if l == nil {
		return nil
	}
	limiter := l.limiterFor(providerID)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate token grants are not pacing.
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObservePacingDelay(providerID, duration)
	}
	return nil
}
