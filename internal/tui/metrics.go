package tui

import (
	"fmt"

	"github.com/agbru/taskmaster/internal/format"
	"github.com/agbru/taskmaster/internal/metrics"
)

// RuntimeModel displays the monitor's own memory and scheduler footprint.
type RuntimeModel struct {
	last  metrics.MemorySnapshot
	prev  metrics.MemorySnapshot
	seen  bool
	width int
}

// NewRuntimeModel creates an empty runtime line.
func NewRuntimeModel() RuntimeModel {
	return RuntimeModel{}
}

// SetWidth updates the available width.
func (m *RuntimeModel) SetWidth(w int) {
	m.width = w
}

// Update stores a new snapshot, keeping the previous one for GC deltas.
func (m *RuntimeModel) Update(s metrics.MemorySnapshot) {
	if m.seen {
		m.prev = m.last
	} else {
		m.prev = s
	}
	m.last = s
	m.seen = true
}

// View renders a single line: heap, GC count and goroutines.
func (m RuntimeModel) View() string {
	if !m.seen {
		return metricLabelStyle.Render(" monitor: sampling...")
	}
	pipe := metricLabelStyle.Render(" | ")
	return fmt.Sprintf(" %s %s%s%s %s%s%s %s",
		metricLabelStyle.Render("Heap:"),
		metricValueStyle.Render(format.FormatBytes(m.last.HeapAlloc)+" / "+format.FormatBytes(m.last.HeapSys)),
		pipe,
		metricLabelStyle.Render("GC:"),
		metricValueStyle.Render(fmt.Sprintf("%d (+%d, %.1fms)", m.last.NumGC, m.last.GCSince(m.prev), float64(m.last.PauseTotal.Microseconds())/1000)),
		pipe,
		metricLabelStyle.Render("Goroutines:"),
		metricValueStyle.Render(fmt.Sprintf("%d", m.last.Goroutines)))
}
