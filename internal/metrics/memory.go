package metrics

import (
	"runtime"
	"time"
)

// MemorySnapshot is the monitor's own runtime footprint at one instant.
type MemorySnapshot struct {
	HeapAlloc  uint64 // live heap bytes
	HeapSys    uint64 // heap bytes reserved from the OS
	Sys        uint64
	NumGC      uint32
	PauseTotal time.Duration
	Goroutines int
	TakenAt    time.Time
}

// MemoryCollector reads runtime statistics for the self-monitoring footer.
type MemoryCollector struct {
	now func() time.Time
}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{now: time.Now}
}

// Snapshot reads current memory statistics. ReadMemStats stops the world
// briefly, so callers should not invoke it more than once per poll cycle.
func (mc *MemoryCollector) Snapshot() MemorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemorySnapshot{
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		PauseTotal: time.Duration(m.PauseTotalNs),
		Goroutines: runtime.NumGoroutine(),
		TakenAt:    mc.now(),
	}
}

// GCSince returns the number of collections between two snapshots.
func (s MemorySnapshot) GCSince(prev MemorySnapshot) uint32 {
	if s.NumGC < prev.NumGC {
		return 0
	}
	return s.NumGC - prev.NumGC
}
