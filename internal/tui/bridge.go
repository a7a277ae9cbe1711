package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agbru/taskmaster/internal/orchestration"
	"github.com/agbru/taskmaster/internal/sysmon"
)

// View is the read side of the tracker the dashboard renders.
type View interface {
	Processes() []sysmon.Entity
	Len() int
	System() sysmon.SystemSnapshot
	LastRefresh() time.Time
}

// programRef is a shared reference to the tea.Program.
// Because bubbletea copies the model on every Update, we need a pointer
// that survives copies so the bridge goroutines can send messages.
type programRef struct {
	mu      sync.RWMutex
	program *tea.Program
}

// SetProgram sets the tea.Program reference (thread-safe).
func (r *programRef) SetProgram(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// Send sends a message to the bubbletea program (thread-safe).
func (r *programRef) Send(msg tea.Msg) {
	r.mu.RLock()
	p := r.program
	r.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// Bridge turns poller updates into UpdateMsg values for the program.
// OnUpdate copies the view and returns at once; Forward delivers the most
// recent pending message, so a slow redraw skips intermediate cycles.
type Bridge struct {
	ref     *programRef
	view    View
	pending chan UpdateMsg
}

// NewBridge creates a bridge reading view.
func NewBridge(ref *programRef, view View) *Bridge {
	return &Bridge{ref: ref, view: view, pending: make(chan UpdateMsg, 1)}
}

// Verify interface compliance.
var _ orchestration.Listener = (*Bridge)(nil)

// OnUpdate satisfies orchestration.Listener.
func (b *Bridge) OnUpdate(u orchestration.Update) {
	msg := UpdateMsg{
		Cycle:       u.Cycle,
		Err:         u.Err,
		Processes:   b.view.Processes(),
		System:      b.view.System(),
		Tracked:     b.view.Len(),
		LastRefresh: b.view.LastRefresh(),
	}
	for {
		select {
		case b.pending <- msg:
			return
		default:
		}
		// Replace the stale message.
		select {
		case <-b.pending:
		default:
		}
	}
}

// Forward delivers pending messages until ctx is done.
func (b *Bridge) Forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.pending:
			b.ref.Send(msg)
		}
	}
}
