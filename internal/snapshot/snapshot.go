// Package snapshot periodically persists the tracker's view to storage and
// prunes old rows. Storage failures are logged and counted, never returned
// from Run.
package snapshot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agbru/taskmaster/internal/control"
	"github.com/agbru/taskmaster/internal/logging"
	"github.com/agbru/taskmaster/internal/sysmon"
)

// Event types written to the events table.
const (
	EventMonitorStart      = "monitor_start"
	EventMonitorStop       = "monitor_stop"
	EventProcessTerminated = "process_terminated"
	EventPriorityChanged   = "priority_changed"
)

// Snapshot kinds used in metrics.
const (
	KindProcesses = "processes"
	KindSystem    = "system"
	KindEvent     = "event"
	KindCleanup   = "cleanup"
)

// Defaults.
const (
	DefaultInterval        = 5 * time.Minute
	DefaultCleanupInterval = 24 * time.Hour
	DefaultRetention       = 7 * 24 * time.Hour
)

var tracer = otel.Tracer("github.com/agbru/taskmaster/internal/snapshot")

// Source is the read side of the tracker.
type Source interface {
	Processes() []sysmon.Entity
	System() sysmon.SystemSnapshot
	LastRefresh() time.Time
}

// Sink is the write side of storage.
type Sink interface {
	InsertProcesses(ctx context.Context, es []sysmon.Entity) error
	InsertSystem(ctx context.Context, snap sysmon.SystemSnapshot) error
	LogEvent(ctx context.Context, eventType, description string, data map[string]any) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Recorder receives write outcomes, typically for metrics.
type Recorder interface {
	SnapshotWritten(kind string)
	SnapshotFailed(kind string)
}

type nopRecorder struct{}

func (nopRecorder) SnapshotWritten(string) {}
func (nopRecorder) SnapshotFailed(string)  {}

// Logger writes snapshots on a schedule.
type Logger struct {
	src             Source
	sink            Sink
	interval        time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	logger          logging.Logger
	recorder        Recorder

	failures atomic.Int64
	writes   atomic.Int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithInterval sets the time between snapshot writes.
func WithInterval(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithCleanup sets how often cleanup runs and the age of rows it removes.
func WithCleanup(every, retention time.Duration) Option {
	return func(l *Logger) {
		if every > 0 {
			l.cleanupInterval = every
		}
		if retention > 0 {
			l.retention = retention
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logging.Logger) Option {
	return func(l *Logger) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(l *Logger) {
		if r != nil {
			l.recorder = r
		}
	}
}

// New creates a snapshot logger.
func New(src Source, sink Sink, opts ...Option) *Logger {
	l := &Logger{
		src:             src,
		sink:            sink,
		interval:        DefaultInterval,
		cleanupInterval: DefaultCleanupInterval,
		retention:       DefaultRetention,
		logger:          logging.Nop,
		recorder:        nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run cleans up once, then writes a snapshot every interval and cleans up
// every cleanup interval until ctx is done. It always returns nil.
func (l *Logger) Run(ctx context.Context) error {
	l.Cleanup(ctx)

	write := time.NewTicker(l.interval)
	defer write.Stop()
	clean := time.NewTicker(l.cleanupInterval)
	defer clean.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-write.C:
			l.WriteSnapshot(ctx)
		case <-clean.C:
			l.Cleanup(ctx)
		}
	}
}

// WriteSnapshot stores the current processes and system snapshot. Nothing
// is written before the first completed refresh. It reports whether both
// writes succeeded.
func (l *Logger) WriteSnapshot(ctx context.Context) bool {
	if l.src.LastRefresh().IsZero() {
		return true
	}
	ctx, span := tracer.Start(ctx, "Snapshot.Write")
	defer span.End()

	procs := l.src.Processes()
	span.SetAttributes(attribute.Int("processes", len(procs)))

	ok := true
	if err := l.sink.InsertProcesses(ctx, procs); err != nil {
		l.fail(KindProcesses, err)
		span.RecordError(err)
		ok = false
	} else {
		l.succeed(KindProcesses)
	}
	if err := l.sink.InsertSystem(ctx, l.src.System()); err != nil {
		l.fail(KindSystem, err)
		span.RecordError(err)
		ok = false
	} else {
		l.succeed(KindSystem)
	}
	if !ok {
		span.SetStatus(codes.Error, "snapshot write failed")
	}
	return ok
}

// Cleanup removes rows older than the retention period and returns the
// number removed, or -1 on failure.
func (l *Logger) Cleanup(ctx context.Context) int64 {
	n, err := l.sink.Cleanup(ctx, l.retention)
	if err != nil {
		l.fail(KindCleanup, err)
		return -1
	}
	l.succeed(KindCleanup)
	if n > 0 {
		l.logger.Info("snapshot cleanup", logging.Int("rows", int(n)), logging.Duration("older_than", l.retention))
	}
	return n
}

// RecordEvent stores a lifecycle event.
func (l *Logger) RecordEvent(ctx context.Context, eventType, description string, data map[string]any) {
	if err := l.sink.LogEvent(ctx, eventType, description, data); err != nil {
		l.fail(KindEvent, err)
		return
	}
	l.succeed(KindEvent)
}

// ControlAction records successful control actions as events. It satisfies
// control.Observer.
func (l *Logger) ControlAction(action string, pid int32, detail string, ok bool) {
	if !ok {
		return
	}
	ctx := context.Background()
	switch action {
	case control.ActionTerminate:
		l.RecordEvent(ctx, EventProcessTerminated, fmt.Sprintf("terminated pid %d", pid), map[string]any{"pid": pid})
	case control.ActionSetPriority:
		l.RecordEvent(ctx, EventPriorityChanged, fmt.Sprintf("pid %d set to %s", pid, detail), map[string]any{"pid": pid, "class": detail})
	}
}

// Failures returns how many storage operations have failed.
func (l *Logger) Failures() int64 { return l.failures.Load() }

// Writes returns how many storage operations have succeeded.
func (l *Logger) Writes() int64 { return l.writes.Load() }

func (l *Logger) fail(kind string, err error) {
	l.failures.Add(1)
	l.recorder.SnapshotFailed(kind)
	l.logger.Error("snapshot storage failed", err, logging.String("kind", kind))
}

func (l *Logger) succeed(kind string) {
	l.writes.Add(1)
	l.recorder.SnapshotWritten(kind)
}

var _ control.Observer = (*Logger)(nil)
