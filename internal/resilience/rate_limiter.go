// Package resilience provides rate limiting for outbound API protection.
package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures rate limiter behavior
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate
	RequestsPerSecond float64

	// BurstSize is the maximum burst size
	BurstSize int
}

// RateLimiter wraps a token-bucket limiter for outbound calls.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
	}
}

// Allow checks if a request is allowed right now
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Wait blocks until a request is allowed or the context is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
