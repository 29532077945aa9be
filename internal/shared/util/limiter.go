package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter to provide a simpler interface.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a token bucket limiter refilling r tokens per second with
// burst b. A non-positive rate disables limiting.
func NewLimiter(r float64, b int) *Limiter {
	limit := rate.Limit(r)
	if r <= 0 {
		limit = rate.Inf
	}
	if b < 1 {
		b = 1
	}
	return &Limiter{
		inner: rate.NewLimiter(limit, b),
	}
}

// Allow reports whether an event with weight n may happen now.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// SetRate changes the refill rate and burst in place.
func (l *Limiter) SetRate(r float64, b int) {
	limit := rate.Limit(r)
	if r <= 0 {
		limit = rate.Inf
	}
	if b < 1 {
		b = 1
	}
	l.inner.SetLimit(limit)
	l.inner.SetBurst(b)
}
