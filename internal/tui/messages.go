package tui

import (
	"time"

	"github.com/agbru/taskmaster/internal/metrics"
	"github.com/agbru/taskmaster/internal/sysmon"
)

// UpdateMsg carries the view state after one polling cycle.
type UpdateMsg struct {
	Cycle       uint64
	Err         error
	Processes   []sysmon.Entity
	System      sysmon.SystemSnapshot
	Tracked     int
	LastRefresh time.Time
}

// TickMsg drives the runtime metrics sampling and the header clock.
type TickMsg time.Time

// MemStatsMsg carries a runtime memory snapshot of the monitor itself.
type MemStatsMsg metrics.MemorySnapshot

// ActionResultMsg reports the outcome of a control action.
type ActionResultMsg struct {
	Action string
	PID    int32
	Detail string
	OK     bool
}

// ContextCancelledMsg is sent when the parent context is done.
type ContextCancelledMsg struct {
	Err error
}
