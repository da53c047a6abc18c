// Package throttle paces outbound calls to the search provider.
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/blogboost/ranktracker/internal/metrics"
)

// Pacer enforces a fixed minimum delay between calls. The first call
// passes immediately; each subsequent call waits out the remainder of the
// configured interval.
type Pacer struct {
	limiter *rate.Limiter
}

// New creates a Pacer with the given inter-call delay. A non-positive
// delay disables pacing.
func New(delay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call is allowed, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(waited)
	}
	return nil
}
