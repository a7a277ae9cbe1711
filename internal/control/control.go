// Package control performs best-effort actions on OS processes: terminate
// and priority change. Every action reports success as a boolean and never
// panics; the reason for a failure is logged.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/logging"
)

// PriorityClass is a platform-neutral scheduling class.
type PriorityClass int

const (
	Realtime PriorityClass = iota
	High
	AboveNormal
	Normal
	BelowNormal
	Low
)

var classNames = [...]string{"realtime", "high", "above-normal", "normal", "below-normal", "low"}

func (c PriorityClass) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return fmt.Sprintf("PriorityClass(%d)", int(c))
	}
	return classNames[c]
}

// PriorityClasses lists every class from highest to lowest priority.
func PriorityClasses() []PriorityClass {
	return []PriorityClass{Realtime, High, AboveNormal, Normal, BelowNormal, Low}
}

// ParsePriorityClass accepts class names case-insensitively, with '-', '_'
// or no separator ("above-normal", "AboveNormal", "above_normal").
func ParsePriorityClass(s string) (PriorityClass, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for i, name := range classNames {
		if strings.ReplaceAll(name, "-", "") == norm {
			return PriorityClass(i), nil
		}
	}
	return Normal, apperrors.NewConfigError("unknown priority class %q", s)
}

// Raise returns the next higher class, saturating at Realtime.
func (c PriorityClass) Raise() PriorityClass {
	if c <= Realtime {
		return Realtime
	}
	return c - 1
}

// Lower returns the next lower class, saturating at Low.
func (c PriorityClass) Lower() PriorityClass {
	if c >= Low {
		return Low
	}
	return c + 1
}

// Action names used in logs and metrics.
const (
	ActionTerminate   = "terminate"
	ActionSetPriority = "set-priority"
)

// Observer is told about every control attempt. detail carries the target
// priority class for ActionSetPriority and is empty otherwise.
type Observer interface {
	ControlAction(action string, pid int32, detail string, ok bool)
}

type nopObserver struct{}

func (nopObserver) ControlAction(string, int32, string, bool) {}

// Controller issues control actions.
type Controller struct {
	logger   logging.Logger
	observer Observer

	// Replaced in tests.
	terminate   func(ctx context.Context, pid int32) error
	setPriority func(pid int32, value int) error
	table       map[PriorityClass]int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for denied actions.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers an observer of every action.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// New returns a Controller using this platform's priority table.
func New(opts ...Option) *Controller {
	c := &Controller{
		logger:      logging.Nop,
		observer:    nopObserver{},
		terminate:   terminateProcess,
		setPriority: setOSPriority,
		table:       priorityTable,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Terminate sends a polite termination request (SIGTERM on Unix) to pid.
// A missing process or a refusal by the OS returns false.
func (c *Controller) Terminate(ctx context.Context, pid int32) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.deny(ActionTerminate, pid, fmt.Errorf("panic: %v", r))
			ok = false
		}
		c.observer.ControlAction(ActionTerminate, pid, "", ok)
	}()
	if pid <= 0 {
		c.deny(ActionTerminate, pid, apperrors.ErrNotFound)
		return false
	}
	if err := c.terminate(ctx, pid); err != nil {
		c.deny(ActionTerminate, pid, err)
		return false
	}
	c.logger.Info("process terminated", logging.Int32("pid", pid))
	return true
}

// SetPriority applies class to pid through the platform table. A class
// without a mapping on this platform is denied without touching the OS.
func (c *Controller) SetPriority(ctx context.Context, pid int32, class PriorityClass) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.deny(ActionSetPriority, pid, fmt.Errorf("panic: %v", r))
			ok = false
		}
		c.observer.ControlAction(ActionSetPriority, pid, class.String(), ok)
	}()
	value, mapped := c.table[class]
	if !mapped {
		c.deny(ActionSetPriority, pid, fmt.Errorf("%w: class %s", apperrors.ErrUnsupported, class))
		return false
	}
	if pid <= 0 {
		c.deny(ActionSetPriority, pid, apperrors.ErrNotFound)
		return false
	}
	if err := ctx.Err(); err != nil {
		c.deny(ActionSetPriority, pid, err)
		return false
	}
	if err := c.setPriority(pid, value); err != nil {
		c.deny(ActionSetPriority, pid, err)
		return false
	}
	c.logger.Info("priority changed", logging.Int32("pid", pid), logging.String("class", class.String()), logging.Int("value", value))
	return true
}

// Supported reports whether class has a mapping on this platform.
func (c *Controller) Supported(class PriorityClass) bool {
	_, ok := c.table[class]
	return ok
}

func (c *Controller) deny(action string, pid int32, cause error) {
	err := apperrors.OperationDeniedError{Op: action, PID: pid, Cause: cause}
	c.logger.Error("process control denied", err, logging.String("action", action), logging.Int32("pid", pid))
}

func terminateProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return apperrors.ErrNotFound
		}
		return err
	}
	return p.TerminateWithContext(ctx)
}
