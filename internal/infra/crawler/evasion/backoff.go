package evasion

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
)

// BackoffPolicy computes the wait before the next attempt. attempt is the
// 1-based number of the attempt that just failed.
type BackoffPolicy interface {
	Delay(attempt int, base time.Duration) time.Duration
}

// LinearBackoff waits base*attempt.
type LinearBackoff struct{}

func (LinearBackoff) Delay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}

// ExponentialJitterBackoff waits base*2^(attempt-1), stretched by a random
// factor in [1, 1+Jitter).
type ExponentialJitterBackoff struct {
	Jitter float64
	// Rand returns a value in [0,1). Defaults to math/rand.
	Rand func() float64
}

func (b ExponentialJitterBackoff) Delay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	factor := math.Pow(2, float64(attempt-1)) * (1 + b.Jitter*r())
	return time.Duration(float64(base) * factor)
}

const DefaultJitter = 0.3

func NewBackoffPolicy(name string) (BackoffPolicy, error) {
	switch name {
	case "", "exponential":
		return ExponentialJitterBackoff{Jitter: DefaultJitter}, nil
	case "linear":
		return LinearBackoff{}, nil
	default:
		return nil, eris.Errorf("evasion: unknown backoff policy %q", name)
	}
}
