// Package system provides the real clock and sleeper.
package system

import (
	"context"
	"time"
)

// Clock implements tracker.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleeper implements tracker.Sleeper with a timer that stops when ctx ends.
type Sleeper struct{}

// NewSleeper creates a new Sleeper.
func NewSleeper() *Sleeper {
	return &Sleeper{}
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func (Sleeper) Sleep(ctx context.Context, d time.Duration) error {
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
