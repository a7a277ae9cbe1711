package orchestration

import (
	"context"
	"time"
)

// Refresher is the unit of work the poller repeats. *tracker.Tracker
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

// Refresh calls the underlying function.
func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Update describes one completed polling cycle.
type Update struct {
	// Cycle counts iterations from 1.
	Cycle uint64
	// Duration is the time spent in Refresh.
	Duration time.Duration
	// Err is the refresh error, nil on success.
	Err error
	// At is when the cycle finished.
	At time.Time
}

// Listener is notified once per cycle, on the polling goroutine.
// Implementations must not block; hand work off to another goroutine or a
// buffered channel instead.
type Listener interface {
	OnUpdate(u Update)
}

// ListenerFunc is a function adapter that implements Listener.
type ListenerFunc func(u Update)

// OnUpdate calls the underlying function.
func (f ListenerFunc) OnUpdate(u Update) { f(u) }

// NullListener discards updates.
type NullListener struct{}

// OnUpdate does nothing.
func (NullListener) OnUpdate(Update) {}

// CycleRecorder receives per-cycle measurements, typically for metrics.
type CycleRecorder interface {
	RecordCycle(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(time.Duration, error) {}
