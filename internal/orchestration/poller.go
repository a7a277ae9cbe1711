package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/logging"
)

// Default timing of the loop.
const (
	DefaultInterval   = 5 * time.Second
	DefaultRetryDelay = time.Second
)

// ErrAlreadyStarted is returned by Run when the poller has already run.
var ErrAlreadyStarted = errors.New("poller already started")

// State is the lifecycle stage of a Poller.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Poller repeats refresh, notify, sleep until stopped. A failed or
// panicking refresh is logged and retried after RetryDelay; the loop only
// exits through Stop or context cancellation.
type Poller struct {
	refresher  Refresher
	interval   time.Duration
	retryDelay time.Duration
	logger     logging.Logger
	recorder   CycleRecorder
	now        func() time.Time

	mu        sync.RWMutex
	listeners []Listener

	state    atomic.Int32
	running  atomic.Bool
	cycle    atomic.Uint64
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the pause after a successful cycle.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRetryDelay sets the pause after a failed cycle.
func WithRetryDelay(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the per-cycle metrics sink.
func WithRecorder(r CycleRecorder) PollerOption {
	return func(p *Poller) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPoller creates an idle poller around r.
func NewPoller(r Refresher, opts ...PollerOption) *Poller {
	p := &Poller{
		refresher:  r,
		interval:   DefaultInterval,
		retryDelay: DefaultRetryDelay,
		logger:     logging.Nop,
		recorder:   nopRecorder{},
		now:        time.Now,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers l for every subsequent cycle.
func (p *Poller) Subscribe(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// State returns the current lifecycle stage.
func (p *Poller) State() State { return State(p.state.Load()) }

// Start launches Run on a new goroutine.
func (p *Poller) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	p.running.Store(true)
	go p.loop(ctx)
	return nil
}

// Run executes the loop on the calling goroutine and returns once the
// poller is stopped or ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	p.running.Store(true)
	p.loop(ctx)
	return nil
}

// Stop clears the running flag, wakes the loop from its sleep and waits
// for the in-flight iteration to finish. No listener is notified after
// Stop returns. Stop on an idle poller marks it stopped.
func (p *Poller) Stop() {
	if p.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		return
	}
	p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	p.running.Store(false)
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done
}

// Done is closed when the loop has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) loop(ctx context.Context) {
	defer func() {
		p.state.Store(int32(StateStopped))
		close(p.done)
	}()

	timer := time.NewTimer(p.interval)
	timer.Stop()
	defer timer.Stop()

	for p.running.Load() && ctx.Err() == nil {
		u := p.RunOnce(ctx)
		if u.Err != nil && apperrors.IsContextError(u.Err) && ctx.Err() != nil {
			return
		}

		delay := p.interval
		if u.Err != nil {
			delay = p.retryDelay
		}
		timer.Reset(delay)
		select {
		case <-timer.C:
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single refresh and notifies listeners. It is used by
// the loop and by one-shot callers.
func (p *Poller) RunOnce(ctx context.Context) Update {
	start := p.now()
	err := p.safeRefresh(ctx)
	u := Update{
		Cycle:    p.cycle.Add(1),
		Duration: p.now().Sub(start),
		Err:      err,
		At:       p.now(),
	}
	p.recorder.RecordCycle(u.Duration, err)
	if err != nil && !(apperrors.IsContextError(err) && ctx.Err() != nil) {
		p.logger.Error("refresh failed", err, logging.Uint64("cycle", u.Cycle), logging.Duration("retry_in", p.retryDelay))
	} else if err == nil {
		p.logger.Debug("refresh complete", logging.Uint64("cycle", u.Cycle), logging.Duration("took", u.Duration))
	}
	p.notify(u)
	return u
}

func (p *Poller) safeRefresh(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panic: %v", r)
		}
	}()
	return p.refresher.Refresh(ctx)
}

func (p *Poller) notify(u Update) {
	p.mu.RLock()
	ls := p.listeners
	p.mu.RUnlock()
	for _, l := range ls {
		l.OnUpdate(u)
	}
}
