package evasion

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer inserts randomised pauses between browser actions.
type Pacer struct {
	min time.Duration
	max time.Duration
}

func NewPacer(min, max time.Duration) *Pacer {
	return &Pacer{min: min, max: max}
}

// Pause sleeps for a random duration in [min, max).
func (p *Pacer) Pause(ctx context.Context) error {
	return p.PauseBetween(ctx, p.min, p.max)
}

func (p *Pacer) PauseBetween(ctx context.Context, min, max time.Duration) error {
	return Sleep(ctx, pick(min, max))
}

func pick(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
