package fetch

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/logger"
)

// RetryConfig configures the shared retry policy for upstream calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// JitterFactor adds up to this fraction of the delay as random jitter.
	JitterFactor float64
	// RateLimitedDelay is the floor delay after a 429 or an upstream
	// rate-limit response, typically much longer than BaseDelay.
	RateLimitedDelay time.Duration
}

// DefaultRetryConfig returns the retry policy used for all fetch call sites.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       2,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         30 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.2,
		RateLimitedDelay: 10 * time.Second,
	}
}

// Retrier executes operations with exponential backoff and jitter. One
// Retrier is shared by every fetch call site so the policy lives in exactly
// one place.
type Retrier struct {
	cfg RetryConfig
	log logger.Logger
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(cfg RetryConfig, log logger.Logger) *Retrier {
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	return &Retrier{cfg: cfg, log: log}
}

// Do runs op, retrying retryable failures up to the configured budget.
// Non-retryable failures (defunct, malformed) return immediately.
func (r *Retrier) Do(ctx context.Context, sourceID string, op func() error) error {
	var lastErr error

	attempts := r.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		var fe *Error
		retryable := errors.As(lastErr, &fe) && fe.Retryable()

		if attempt == attempts || !retryable {
			return lastErr
		}

		delay := r.delayFor(attempt, fe.Kind)
		r.log.Warn("fetch attempt failed, backing off",
			logger.String("source_id", sourceID),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// delayFor computes the backoff before retry number attempt.
func (r *Retrier) delayFor(attempt int, kind Kind) time.Duration {
	delay := time.Duration(float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1)))

	// 429s and exhausted upstream budgets get a longer floor: retrying
	// quickly just burns more of the shared per-host budget.
	if kind == KindUpstreamRateLimited && delay < r.cfg.RateLimitedDelay {
		delay = r.cfg.RateLimitedDelay
	}

	if r.cfg.JitterFactor > 0 {
		delay += time.Duration(rand.Float64() * r.cfg.JitterFactor * float64(delay))
	}

	if r.cfg.MaxDelay > 0 && delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	return delay
}
