package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// API pacing and retry policy for the generation stages. One image-heavy
// run makes hundreds of calls; the free-tier quota is the usual failure.
// ---------------------------------------------------------------------------

// Pacer spaces out generation API calls.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows requestsPerMinute sustained calls with no burst beyond
// one in-flight request.
func NewPacer(requestsPerMinute float64) *Pacer {
	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1),
	}
}

// Wait blocks until the next call is allowed or the context ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// RetryPolicy decides whether a failed generation call should be retried
// and how long to wait first.
type RetryPolicy interface {
	// Backoff returns the delay before attempt+1, or ok=false to give up.
	// attempt is zero-based: the first failure passes attempt=0.
	Backoff(err error, attempt int) (delay time.Duration, ok bool)
}

// QuotaAwarePolicy retries with a short fixed delay, except quota errors,
// which get a long cooldown so the provider's window can reset.
type QuotaAwarePolicy struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	QuotaCooldown time.Duration
}

var _ RetryPolicy = (*QuotaAwarePolicy)(nil)

func NewQuotaAwarePolicy(quotaCooldown time.Duration) *QuotaAwarePolicy {
	return &QuotaAwarePolicy{
		MaxAttempts:   3,
		RetryDelay:    5 * time.Second,
		QuotaCooldown: quotaCooldown,
	}
}

func (p *QuotaAwarePolicy) Backoff(err error, attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts-1 {
		return 0, false
	}
	if IsQuotaError(err) {
		return p.QuotaCooldown, true
	}
	return p.RetryDelay, true
}

// Sleep waits for the given duration unless the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
