package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/agbru/taskmaster/internal/format"
	"github.com/agbru/taskmaster/internal/sysmon"
)

const (
	historyCapacity = 120
	systemFixedRows = 8 // title, three gauges, load, network, two sparklines
	minChartRows    = 2
)

// SystemModel renders host-wide gauges with CPU and memory history.
type SystemModel struct {
	snap       sysmon.SystemSnapshot
	cpuHistory *History
	memHistory *History

	prevSent, prevRecv uint64
	prevAt             time.Time
	sentRate, recvRate float64 // bytes per second

	width  int
	height int
}

// NewSystemModel creates an empty system panel.
func NewSystemModel() SystemModel {
	return SystemModel{
		cpuHistory: NewHistory(historyCapacity),
		memHistory: NewHistory(historyCapacity),
	}
}

// SetSize updates dimensions and resizes the history buffers to the
// sparkline width.
func (m *SystemModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if sw := m.sparklineWidth(); sw > 0 {
		m.cpuHistory.SetCapacity(max(sw, m.chartWidth()*2))
		m.memHistory.SetCapacity(sw)
	}
}

// Update records a new host snapshot. Network rates are derived from the
// counter delta since the previous snapshot; a counter reset yields zero.
func (m *SystemModel) Update(s sysmon.SystemSnapshot) {
	if !m.prevAt.IsZero() && s.SampledAt.After(m.prevAt) {
		dt := s.SampledAt.Sub(m.prevAt).Seconds()
		m.sentRate = counterRate(m.prevSent, s.NetBytesSent, dt)
		m.recvRate = counterRate(m.prevRecv, s.NetBytesRecv, dt)
	}
	m.prevSent, m.prevRecv, m.prevAt = s.NetBytesSent, s.NetBytesRecv, s.SampledAt
	m.snap = s
	m.cpuHistory.Add(s.CPUPercent)
	m.memHistory.Add(s.MemoryPercent)
}

func counterRate(prev, cur uint64, seconds float64) float64 {
	if cur < prev || seconds <= 0 {
		return 0
	}
	return float64(cur-prev) / seconds
}

func (m SystemModel) innerWidth() int { return max(m.width-4, 10) }

func (m SystemModel) barWidth() int { return max(m.innerWidth()-30, 5) }

func (m SystemModel) sparklineWidth() int { return max(m.innerWidth()-6, 0) }

func (m SystemModel) chartWidth() int { return max(m.innerWidth()-6, 0) }

func (m SystemModel) chartRows() int { return m.height - 2 - systemFixedRows - 1 }

// View renders the system panel.
func (m SystemModel) View() string {
	var b strings.Builder
	s := m.snap

	b.WriteString(panelTitleStyle.Render("System"))
	b.WriteString("\n")
	b.WriteString(m.gauge("CPU ", s.CPUPercent, fmt.Sprintf("%d cores", s.CPUCount)))
	b.WriteString("\n")
	b.WriteString(m.gauge("MEM ", s.MemoryPercent, fmt.Sprintf("%.1f/%.1f GB free", s.MemoryAvailableGB, s.MemoryTotalGB)))
	b.WriteString("\n")
	b.WriteString(m.gauge("DISK", s.DiskPercent, fmt.Sprintf("%.0f/%.0f GB %s", s.DiskUsedGB, s.DiskTotalGB, s.DiskPath)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(" %s %s  %s %s",
		metricLabelStyle.Render("LOAD"),
		metricValueStyle.Render(fmt.Sprintf("%.2f %.2f %.2f", s.Load1, s.Load5, s.Load15)),
		metricLabelStyle.Render("PROCS"),
		metricValueStyle.Render(fmt.Sprintf("%d", s.ProcessCount))))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf(" %s %s %s",
		metricLabelStyle.Render("NET "),
		metricValueStyle.Render("↑ "+format.FormatBytes(uint64(m.sentRate))+"/s"),
		metricValueStyle.Render("↓ "+format.FormatBytes(uint64(m.recvRate))+"/s")))
	b.WriteString("\n")
	b.WriteString(m.sparkline("CPU ", m.cpuHistory, cpuSparklineStyle.Render))
	b.WriteString("\n")
	b.WriteString(m.sparkline("MEM ", m.memHistory, memSparklineStyle.Render))

	if rows := m.chartRows(); rows >= minChartRows {
		b.WriteString("\n")
		b.WriteString(metricLabelStyle.Render(fmt.Sprintf(" CPU history (avg %s, peak %s)",
			format.FormatPercent(m.cpuHistory.Average()), format.FormatPercent(m.cpuHistory.Peak()))))
		for _, line := range BrailleChart(m.cpuHistory.Values(), m.chartWidth(), rows) {
			b.WriteString("\n ")
			b.WriteString(chartStyle.Render(line))
		}
	}

	return panelStyle.
		Width(m.width - 2).
		Height(max(m.height-2, 0)).
		Render(b.String())
}

func (m SystemModel) gauge(label string, percent float64, detail string) string {
	return fmt.Sprintf(" %s %s %s %s",
		metricLabelStyle.Render(label),
		gaugeStyle(percent).Render(format.Bar(percent, m.barWidth())),
		metricValueStyle.Render(fmt.Sprintf("%6s", format.FormatPercent(percent))),
		metricLabelStyle.Render(detail))
}

func (m SystemModel) sparkline(label string, h *History, render func(...string) string) string {
	return fmt.Sprintf(" %s %s", metricLabelStyle.Render(label), render(Sparkline(h.Tail(m.sparklineWidth()))))
}
