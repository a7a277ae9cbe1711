package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/taskmaster/internal/format"
)

// HeaderModel is the top bar: product name, host uptime, tracked count and
// the wall-clock time of the last refresh.
type HeaderModel struct {
	version     string
	hostUptime  time.Duration
	lastRefresh time.Time
	tracked     int
	width       int
}

func NewHeaderModel(version string) HeaderModel {
	return HeaderModel{version: version}
}

// SetStatus records the values of the latest cycle.
func (h *HeaderModel) SetStatus(uptime time.Duration, lastRefresh time.Time, tracked int) {
	h.hostUptime, h.lastRefresh, h.tracked = uptime, lastRefresh, tracked
}

func (h *HeaderModel) SetWidth(w int) { h.width = w }

// title omits development build versions.
func (h HeaderModel) title() string {
	if h.version == "" || h.version == "dev" {
		return "Taskmaster"
	}
	return "Taskmaster " + h.version
}

func (h HeaderModel) View() string {
	segment := func(label, value string) string {
		return versionStyle.Render(label+" ") + headerValueStyle.Render(value)
	}
	left := strings.Join([]string{
		titleStyle.Render(h.title()),
		segment("Up", format.FormatUptime(h.hostUptime)),
		segment("Tracked", strconv.Itoa(h.tracked)),
	}, versionStyle.Render(" | "))
	right := segment("Updated", format.FormatClock(h.lastRefresh))

	return headerStyle.Width(h.width).Render(justify(left, right, h.width-2))
}

// justify places left and right at the edges of width cells, keeping at
// least one space between them.
func justify(left, right string, width int) string {
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}
