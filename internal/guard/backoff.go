package guard

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/fyrsmithlabs/skillgate/internal/config"
)

const defaultBaseBackoff = 300 * time.Millisecond

// Backoff computes exponential retry delays with uniform jitter:
// 2^(attempt-1) * base + uniform(0, jitter).
type Backoff struct {
	base   time.Duration
	jitter time.Duration
}

// NewBackoff builds a backoff from guard config, applying defaults for
// unset fields.
func NewBackoff(cfg config.GuardConfig) *Backoff {
	b := &Backoff{
		base:   time.Duration(cfg.BaseBackoffMS) * time.Millisecond,
		jitter: time.Duration(cfg.JitterMS) * time.Millisecond,
	}
	if cfg.BaseBackoffMS <= 0 {
		b.base = defaultBaseBackoff
	}
	if cfg.JitterMS < 0 {
		b.jitter = 0
	}
	return b
}

// Delay returns the delay before the retry following the given attempt
// number (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<(attempt-1)) * b.base
	if b.jitter > 0 {
		d += rand.N(b.jitter)
	}
	return d
}

// sleep blocks for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
