package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agbru/taskmaster/internal/format"
	"github.com/agbru/taskmaster/internal/orchestration"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/ui"
)

// View is the read side of the tracker used by the CLI.
type View interface {
	Top(n int) []sysmon.Entity
	Get(pid int32) (sysmon.Entity, bool)
	Processes() []sysmon.Entity
	Len() int
	System() sysmon.SystemSnapshot
	LastRefresh() time.Time
}

// TakeSnapshot reads the top n processes and the host snapshot from v.
func TakeSnapshot(v View, n int) Snapshot {
	return Snapshot{
		Processes: v.Top(n),
		System:    v.System(),
		Tracked:   v.Len(),
		At:        v.LastRefresh(),
	}
}

// Presenter prints a table for every polling cycle. A spinner runs until the
// first cycle completes.
type Presenter struct {
	out     io.Writer
	view    View
	count   int
	spinner Spinner

	mu       sync.Mutex
	waiting  bool
	printed  int
	failures int
}

// NewPresenter creates a presenter writing tables to out and the spinner to
// spinnerOut.
func NewPresenter(out, spinnerOut io.Writer, view View, count int) *Presenter {
	return &Presenter{
		out:     out,
		view:    view,
		count:   count,
		spinner: newSpinner(spinnerOut),
	}
}

// Start shows the spinner.
func (p *Presenter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiting {
		return
	}
	p.waiting = true
	p.spinner.UpdateSuffix(WaitingMessage)
	p.spinner.Start()
}

// OnUpdate satisfies orchestration.Listener.
func (p *Presenter) OnUpdate(u orchestration.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopSpinnerLocked()

	if u.Err != nil {
		p.failures++
		fmt.Fprintf(p.out, "%scycle %d failed after %s: %v%s\n",
			ui.ColorRed(), u.Cycle, format.FormatExecutionDuration(u.Duration), u.Err, ui.ColorReset())
		return
	}
	if p.printed > 0 {
		fmt.Fprintln(p.out)
	}
	DisplaySnapshot(p.out, TakeSnapshot(p.view, p.count))
	p.printed++
}

// Stop clears the spinner if it is still running.
func (p *Presenter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopSpinnerLocked()
}

// Printed returns how many tables have been written.
func (p *Presenter) Printed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed
}

func (p *Presenter) stopSpinnerLocked() {
	if p.waiting {
		p.spinner.Stop()
		p.waiting = false
	}
}

var _ orchestration.Listener = (*Presenter)(nil)
