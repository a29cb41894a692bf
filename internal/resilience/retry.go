// Package resilience retries store connections that fail for transient
// reasons.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Policy bounds how long Connect keeps trying to reach a store.
type Policy struct {
	// Attempts is the total number of dials, including the first.
	Attempts int
	// Backoff is the wait before the second dial. It doubles per retry.
	Backoff time.Duration
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
}

// NewPolicy builds a Policy from the retry section of the config. Zero or
// negative values fall back to 3 attempts, 500ms and 5s.
func NewPolicy(attempts, backoffMs, maxBackoffMs int) Policy {
	p := Policy{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
	if attempts > 0 {
		p.Attempts = attempts
	}
	if backoffMs > 0 {
		p.Backoff = time.Duration(backoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p
}

// wait returns the delay after the given failed dial (1-based) with ±25%
// jitter.
func (p Policy) wait(failed int) time.Duration {
	d := p.Backoff
	for i := 1; i < failed && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	jitter := (rand.Float64()*0.5 - 0.25) * float64(d)
	return d + time.Duration(jitter)
}

// Connect calls open until it returns a store, fails with an error
// IsTransient rejects, runs out of attempts or ctx is done. The last dial
// error is returned, annotated with the attempt count.
func Connect[T any](ctx context.Context, p Policy, driver string, open func(ctx context.Context) (T, error)) (T, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	log := zap.L().With(zap.String("component", "store.connect"), zap.String("driver", driver))

	var zero T
	for attempt := 1; ; attempt++ {
		st, err := open(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("store connected after retry", zap.Int("attempt", attempt))
			}
			return st, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return zero, err
		}
		if attempt == p.Attempts {
			return zero, eris.Wrapf(err, "%s: gave up after %d attempts", driver, attempt)
		}

		d := p.wait(attempt)
		log.Warn("store not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", d),
			zap.Error(err),
		)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
