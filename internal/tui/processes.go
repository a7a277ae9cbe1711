package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agbru/taskmaster/internal/format"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/tracker"
)

// ProcessTableModel shows the busiest tracked processes, optionally
// filtered by name.
type ProcessTableModel struct {
	table     table.Model
	filter    textinput.Model
	filtering bool

	all   []sysmon.Entity
	shown []sysmon.Entity
	limit int

	width  int
	height int
}

// NewProcessTableModel creates a table showing at most limit rows.
func NewProcessTableModel(limit int) ProcessTableModel {
	if limit <= 0 {
		limit = 10
	}
	ti := textinput.New()
	ti.Placeholder = "process name"
	ti.Prompt = "/ "
	ti.CharLimit = 50
	ti.Width = 30

	t := table.New(
		table.WithColumns(processColumns(0)),
		table.WithFocused(true),
		table.WithHeight(limit),
	)
	t.SetStyles(tableStyles)

	return ProcessTableModel{table: t, filter: ti, limit: limit}
}

// processColumns sizes the name column to the available width.
func processColumns(width int) []table.Column {
	fixed := 8 + 8 + 10 + 5 + 10 + 10 + 2*7
	name := max(width-4-fixed, 16)
	return []table.Column{
		{Title: "PID", Width: 8},
		{Title: "Name", Width: name},
		{Title: "CPU%", Width: 8},
		{Title: "Memory", Width: 10},
		{Title: "Thr", Width: 5},
		{Title: "User", Width: 10},
		{Title: "Status", Width: 10},
	}
}

// SetSize updates dimensions.
func (m *ProcessTableModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.table.SetColumns(processColumns(w))
	m.table.SetWidth(max(w-2, 0))
	// Border, filter line and header.
	m.table.SetHeight(max(min(m.limit, h-6), 1) + 2)
}

// SetProcesses replaces the tracked set and rebuilds the rows.
func (m *ProcessTableModel) SetProcesses(es []sysmon.Entity) {
	m.all = es
	m.refresh()
}

// Query returns the current filter text.
func (m ProcessTableModel) Query() string { return m.filter.Value() }

// Filtering reports whether the filter input has focus.
func (m ProcessTableModel) Filtering() bool { return m.filtering }

// StartFilter focuses the filter input.
func (m *ProcessTableModel) StartFilter() tea.Cmd {
	m.filtering = true
	m.table.Blur()
	return m.filter.Focus()
}

// StopFilter returns focus to the table. clear also drops the query.
func (m *ProcessTableModel) StopFilter(clear bool) {
	m.filtering = false
	m.filter.Blur()
	m.table.Focus()
	if clear {
		m.filter.SetValue("")
	}
	m.refresh()
}

// UpdateFilter forwards a message to the filter input and re-filters.
func (m *ProcessTableModel) UpdateFilter(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refresh()
	return cmd
}

// UpdateTable forwards navigation keys to the table.
func (m *ProcessTableModel) UpdateTable(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return cmd
}

// Selected returns the entity under the cursor.
func (m ProcessTableModel) Selected() (sysmon.Entity, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.shown) {
		return sysmon.Entity{}, false
	}
	return m.shown[i], true
}

// Shown returns the rows currently displayed.
func (m ProcessTableModel) Shown() []sysmon.Entity { return m.shown }

func (m *ProcessTableModel) refresh() {
	list := append([]sysmon.Entity(nil), tracker.FilterByName(m.all, m.filter.Value())...)
	tracker.SortByCPU(list)
	if len(list) > m.limit {
		list = list[:m.limit]
	}
	m.shown = list

	rows := make([]table.Row, len(list))
	for i, e := range list {
		rows[i] = table.Row{
			strconv.Itoa(int(e.PID)),
			e.Name,
			format.FormatPercent(e.CPUPercent),
			format.FormatMB(e.MemoryMB),
			strconv.Itoa(int(e.NumThreads)),
			e.Username,
			e.Status,
		}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// View renders the table panel.
func (m ProcessTableModel) View() string {
	title := panelTitleStyle.Render(fmt.Sprintf("Processes (top %d of %d)", len(m.shown), len(m.all)))
	var filterLine string
	switch {
	case m.filtering:
		filterLine = m.filter.View()
	case m.filter.Value() != "":
		filterLine = metricLabelStyle.Render("filter: ") + metricValueStyle.Render(m.filter.Value())
	default:
		filterLine = metricLabelStyle.Render("press / to filter")
	}
	body := title + "\n" + filterLine + "\n" + m.table.View()
	if len(m.shown) == 0 {
		body += "\n" + metricLabelStyle.Render("  no matching process")
	}
	return panelStyle.
		Width(max(m.width-2, 0)).
		Height(max(m.height-2, 0)).
		Render(body)
}
