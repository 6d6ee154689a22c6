package stealth

import (
	"context"
	"math/rand/v2"
	"time"
)

// Jitter returns a duration drawn uniformly from [min, max]. A reversed or
// empty range returns min.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		if min < 0 {
			return 0
		}
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}

// Delay sleeps for a jittered duration, returning early with the context
// error if ctx ends first.
func Delay(ctx context.Context, min, max time.Duration) error {
	d := Jitter(min, max)
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
