// Package tui implements the interactive process dashboard on bubbletea.
// Poller updates reach the program through a Bridge; control actions run as
// commands so the UI never blocks on the operating system.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/taskmaster/internal/control"
	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/metrics"
	"github.com/agbru/taskmaster/internal/orchestration"
	"github.com/agbru/taskmaster/internal/sysmon"
)

// Controller performs process actions for the dashboard.
type Controller interface {
	Terminate(ctx context.Context, pid int32) bool
	SetPriority(ctx context.Context, pid int32, class control.PriorityClass) bool
}

// Options configures a dashboard.
type Options struct {
	Version      string
	DisplayCount int
}

// Layout constants for the TUI dashboard.
const (
	headerHeight             = 1
	footerHeight             = 2 // runtime line + key hints
	minBodyHeight            = 8
	ProcessPanelWidthPercent = 60
	tickInterval             = time.Second
	actionTimeout            = 5 * time.Second
)

// LayoutManager holds terminal dimensions and provides layout calculations.
type LayoutManager struct {
	width  int
	height int
}

// bodyHeight returns the available height for the main body panels.
func (l LayoutManager) bodyHeight() int {
	return max(l.height-headerHeight-footerHeight, minBodyHeight)
}

// processWidth returns the width allocated to the process table.
func (l LayoutManager) processWidth() int {
	return l.width * ProcessPanelWidthPercent / 100
}

// systemWidth returns the width allocated to the system panel.
func (l LayoutManager) systemWidth() int {
	return l.width - l.processWidth()
}

// Model is the root bubbletea model for the dashboard.
type Model struct {
	header  HeaderModel
	procs   ProcessTableModel
	system  SystemModel
	runtime RuntimeModel
	footer  FooterModel

	keymap KeyMap
	LayoutManager

	ctx       context.Context
	ctl       Controller
	collector *metrics.MemoryCollector

	paused     bool
	confirming bool
	target     sysmon.Entity
	// classes remembers the last class set per PID; unknown PIDs are Normal.
	classes map[int32]control.PriorityClass
}

// NewModel creates a dashboard model. ctx bounds control actions and ends
// the program when cancelled.
func NewModel(ctx context.Context, ctl Controller, opts Options) Model {
	km := DefaultKeyMap()
	return Model{
		header:    NewHeaderModel(opts.Version),
		procs:     NewProcessTableModel(opts.DisplayCount),
		system:    NewSystemModel(),
		runtime:   NewRuntimeModel(),
		footer:    NewFooterModel(km.ShortHelp()),
		keymap:    km,
		ctx:       ctx,
		ctl:       ctl,
		collector: metrics.NewMemoryCollector(),
		classes:   make(map[int32]control.PriorityClass),
	}
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		sampleMemStatsCmd(m.collector),
		watchContextCmd(m.ctx),
	)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()
		return m, nil

	case UpdateMsg:
		m.footer.SetFailing(msg.Err != nil)
		if m.paused || msg.Err != nil {
			return m, nil
		}
		m.procs.SetProcesses(msg.Processes)
		m.system.Update(msg.System)
		m.header.SetStatus(msg.System.Uptime, msg.LastRefresh, msg.Tracked)
		return m, nil

	case TickMsg:
		if m.paused {
			return m, tickCmd()
		}
		return m, tea.Batch(sampleMemStatsCmd(m.collector), tickCmd())

	case MemStatsMsg:
		m.runtime.Update(metrics.MemorySnapshot(msg))
		return m, nil

	case ActionResultMsg:
		m.applyActionResult(msg)
		return m, nil

	case ContextCancelledMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirming {
		switch {
		case key.Matches(msg, m.keymap.Confirm):
			m.confirming = false
			m.footer.SetPrompt("")
			return m, terminateCmd(m.ctx, m.ctl, m.target.PID)
		case key.Matches(msg, m.keymap.Cancel):
			m.confirming = false
			m.footer.SetPrompt("")
			m.footer.SetMessage("kill cancelled", false)
		}
		return m, nil
	}

	if m.procs.Filtering() {
		switch msg.String() {
		case "enter":
			m.procs.StopFilter(false)
			return m, nil
		case "esc":
			m.procs.StopFilter(true)
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		return m, m.procs.UpdateFilter(msg)
	}

	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Pause):
		m.paused = !m.paused
		m.footer.SetPaused(m.paused)
		return m, nil

	case key.Matches(msg, m.keymap.Filter):
		return m, m.procs.StartFilter()

	case key.Matches(msg, m.keymap.Kill):
		e, ok := m.procs.Selected()
		if !ok {
			return m, nil
		}
		m.confirming = true
		m.target = e
		m.footer.SetPrompt(fmt.Sprintf("Terminate %d (%s)? [y/n]", e.PID, e.Name))
		return m, nil

	case key.Matches(msg, m.keymap.Raise), key.Matches(msg, m.keymap.Lower):
		e, ok := m.procs.Selected()
		if !ok {
			return m, nil
		}
		current, known := m.classes[e.PID]
		if !known {
			current = control.Normal
		}
		next := current.Lower()
		if key.Matches(msg, m.keymap.Raise) {
			next = current.Raise()
		}
		if next == current {
			m.footer.SetMessage(fmt.Sprintf("%d already %s", e.PID, current), false)
			return m, nil
		}
		return m, setPriorityCmd(m.ctx, m.ctl, e.PID, next)

	case key.Matches(msg, m.keymap.Up), key.Matches(msg, m.keymap.Down),
		key.Matches(msg, m.keymap.PageUp), key.Matches(msg, m.keymap.PageDown):
		return m, m.procs.UpdateTable(msg)
	}

	return m, nil
}

func (m *Model) applyActionResult(r ActionResultMsg) {
	switch r.Action {
	case control.ActionTerminate:
		if r.OK {
			m.footer.SetMessage(fmt.Sprintf("terminated %d", r.PID), false)
		} else {
			m.footer.SetMessage(fmt.Sprintf("could not terminate %d", r.PID), true)
		}
	case control.ActionSetPriority:
		if r.OK {
			if class, err := control.ParsePriorityClass(r.Detail); err == nil {
				m.classes[r.PID] = class
			}
			m.footer.SetMessage(fmt.Sprintf("%d set to %s", r.PID, r.Detail), false)
		} else {
			m.footer.SetMessage(fmt.Sprintf("could not set %d to %s", r.PID, r.Detail), true)
		}
	}
}

// View renders the entire dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.procs.View(), m.system.View())
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(), body, m.runtime.View(), m.footer.View())
}

func (m *Model) layoutPanels() {
	m.header.SetWidth(m.width)
	m.footer.SetWidth(m.width)
	m.runtime.SetWidth(m.width)
	m.procs.SetSize(m.processWidth(), m.bodyHeight())
	m.system.SetSize(m.systemWidth(), m.bodyHeight())
}

// Dashboard owns a bubbletea program and the bridge feeding it.
type Dashboard struct {
	model  Model
	ref    *programRef
	bridge *Bridge
}

// New creates a dashboard over view. Subscribe Listener() to the poller
// before calling Run.
func New(ctx context.Context, view View, ctl Controller, opts Options) *Dashboard {
	ref := &programRef{}
	return &Dashboard{
		model:  NewModel(ctx, ctl, opts),
		ref:    ref,
		bridge: NewBridge(ref, view),
	}
}

// Listener returns the poller listener forwarding updates to the program.
func (d *Dashboard) Listener() orchestration.Listener { return d.bridge }

// Run shows the dashboard until the user quits or ctx is cancelled, and
// returns the exit code.
func (d *Dashboard) Run(ctx context.Context) int {
	// Rebuild styles from the current ui theme (set by app.Run via InitTheme).
	initTUIStyles()
	d.model.procs.table.SetStyles(tableStyles)

	fwdCtx, stop := context.WithCancel(ctx)
	defer stop()

	p := tea.NewProgram(d.model, tea.WithAltScreen(), tea.WithContext(ctx))
	// Inject the program reference before running so the bridge can Send.
	d.ref.SetProgram(p)
	go d.bridge.Forward(fwdCtx)

	_, err := p.Run()
	switch {
	case err == nil:
		return apperrors.ExitSuccess
	case ctx.Err() != nil:
		return apperrors.ExitSuccess
	default:
		return apperrors.ExitErrorGeneric
	}
}

// tickCmd returns a command that sends a TickMsg after tickInterval.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// sampleMemStatsCmd reads the monitor's runtime stats.
func sampleMemStatsCmd(c *metrics.MemoryCollector) tea.Cmd {
	return func() tea.Msg {
		return MemStatsMsg(c.Snapshot())
	}
}

// watchContextCmd waits for context cancellation and sends a message.
func watchContextCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return ContextCancelledMsg{Err: ctx.Err()}
	}
}

func terminateCmd(ctx context.Context, ctl Controller, pid int32) tea.Cmd {
	return func() tea.Msg {
		actx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return ActionResultMsg{Action: control.ActionTerminate, PID: pid, OK: ctl.Terminate(actx, pid)}
	}
}

func setPriorityCmd(ctx context.Context, ctl Controller, pid int32, class control.PriorityClass) tea.Cmd {
	return func() tea.Msg {
		actx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return ActionResultMsg{
			Action: control.ActionSetPriority,
			PID:    pid,
			Detail: class.String(),
			OK:     ctl.SetPriority(actx, pid, class),
		}
	}
}
