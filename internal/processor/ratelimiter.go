package processor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/orbitwire/newsclean/internal/logging"
)

// DefaultRatePerSecond caps reclassification throughput when no limit is
// configured, so a sweep over a large backlog cannot starve live ingest.
const DefaultRatePerSecond = 100

// RateLimiter throttles classification passes.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewRateLimiter creates a rate limiter allowing rps passes per second
// with the given burst. Burst defaults to rps.
func NewRateLimiter(rps, burst int, logger logging.Logger) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRatePerSecond
	}
	if burst <= 0 {
		burst = rps
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// Wait blocks until the limiter allows one pass or the context ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		r.logger.Warn("rate limiter wait failed", logging.Error(err))
		return err
	}
	return nil
}

// Allow reports whether one pass may proceed without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetLimit updates the per-second rate.
func (r *RateLimiter) SetLimit(rps int) {
	r.limiter.SetLimit(rate.Limit(rps))
	r.logger.Info("rate limit updated", logging.Int("rps", rps))
}
