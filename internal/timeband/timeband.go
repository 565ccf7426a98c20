// Package timeband gates the run loop to a configured window of allowed hours.
package timeband

import (
	"context"
	"time"
)

// InWindow reports whether hour falls inside the allowed window [start, end).
// When start > end the window crosses midnight, e.g. 22-8 means 22:00 to 08:00.
func InWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Gate blocks the loop until the current hour is inside the allowed window.
type Gate struct {
	Start int
	End   int

	// Now and Poll exist for tests. Zero values mean time.Now and one minute.
	Now  func() time.Time
	Poll time.Duration

	// Progress, if set, is called once per poll while waiting.
	Progress func(now time.Time)
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Open reports whether the current time is inside the allowed window.
func (g *Gate) Open() bool {
	return InWindow(g.now().Hour(), g.Start, g.End)
}

// Wait blocks until the window opens, polling once per minute. It returns
// ctx.Err() if the context is cancelled first.
func (g *Gate) Wait(ctx context.Context) error {
	poll := g.Poll
	if poll <= 0 {
		poll = time.Minute
	}

	for !g.Open() {
		if g.Progress != nil {
			g.Progress(g.now())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	return nil
}
