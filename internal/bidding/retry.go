package bidding

import (
	"context"
	"math"
	"time"

	"github.com/iliyamo/live-auction/internal/config"
)

// RetryPolicy bounds how often the resolver retries a lost
// compare-and-set.  Multiplier 1 gives a fixed delay; above 1 the delay
// grows exponentially up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 50 * time.Millisecond, Multiplier: 1, MaxBackoff: time.Second}
}

// PolicyFromConfig builds the policy from worker configuration.
func PolicyFromConfig(cfg config.ResolverConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		Multiplier:  cfg.Multiplier,
		MaxBackoff:  cfg.MaxBackoff,
	}
}

// Delay is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	d := time.Duration(float64(p.Backoff) * math.Pow(m, float64(attempt-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
