// Package ratelimit spaces outbound provider calls with a token bucket.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is shared by every client that talks to the same provider. A nil
// *Limiter never blocks.
type Limiter struct {
	bucket *rate.Limiter
}

// New allows one call per minInterval with the given burst. A non-positive
// interval returns nil.
func New(minInterval time.Duration, burst int) *Limiter {
	if minInterval <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Every(minInterval), burst)}
}

// Wait blocks until a call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.bucket.Wait(ctx)
}

// Allow reports whether a call may proceed now without waiting.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.bucket.Allow()
}
