package reconnect

import (
	"context"
	"time"
)

// Schedule defines the backoff durations for successive retry attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

// Wait sleeps for the attempt's delay scaled by scale, returning false if ctx
// ends first. A scale of zero or less means 1.
func Wait(ctx context.Context, attempt int, scale float64) bool {
	if scale <= 0 {
		scale = 1
	}
	t := time.NewTimer(time.Duration(float64(Delay(attempt)) * scale))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
