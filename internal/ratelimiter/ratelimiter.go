// Package ratelimiter throttles the request rate of a single client
// connection using a token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests on one connection. Each request consumes one
// token; the bucket refills at the configured rate and holds up to burst
// tokens.
//
// A nil *RateLimiter is valid and never throttles, so callers can skip the
// nil check when throttling is disabled.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with bursts of
// up to burst requests. A zero rate disables limiting and returns nil. A zero
// burst is raised to one so that the limiter can ever admit a request.
func New(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Enabled reports whether the limiter throttles at all.
func (r *RateLimiter) Enabled() bool {
	return r != nil
}

// Allow consumes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns the context error if ctx was cancelled first, or an error if the
// wait would exceed ctx's deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently available. Unlimited
// limiters report +Inf.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return float64(rate.Inf)
	}
	return r.limiter.Tokens()
}
