// Package tracker keeps a bounded view of the busiest processes across
// polling cycles.
//
// Each Refresh ranks every visible process by its cheap CPU reading, keeps
// the top N, deep-samples only the processes that just entered the set and
// re-samples those already present. The new view is built aside and swapped
// in under a lock, so readers always see a complete cycle.
package tracker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/agbru/taskmaster/internal/errors"
	"github.com/agbru/taskmaster/internal/logging"
	"github.com/agbru/taskmaster/internal/sysmon"
)

// DefaultLimit is the retention bound N.
const DefaultLimit = 50

// DefaultDisplayCount caps presentation views.
const DefaultDisplayCount = 10

var tracer = otel.Tracer("github.com/agbru/taskmaster/internal/tracker")

// RefreshStats summarizes the most recent refresh.
type RefreshStats struct {
	Candidates int
	Added      int
	Removed    int
	Dropped    int // re-sample failures
	Skipped    int // new PIDs that vanished before sampling
	Tracked    int
	Duration   time.Duration
}

// Tracker owns the retention set. All read methods are safe for concurrent
// use with Refresh.
type Tracker struct {
	sampler sysmon.Sampler
	limit   int
	logger  logging.Logger
	now     func() time.Time

	refreshMu sync.Mutex

	mu          sync.RWMutex
	entities    map[int32]sysmon.Entity
	system      sysmon.SystemSnapshot
	lastRefresh time.Time
	stats       RefreshStats
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLimit sets the retention bound. Values below 1 are ignored.
func WithLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.limit = n
		}
	}
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(l logging.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns an empty tracker reading from s.
func New(s sysmon.Sampler, opts ...Option) *Tracker {
	t := &Tracker{
		sampler:  s,
		limit:    DefaultLimit,
		logger:   logging.Nop,
		now:      time.Now,
		entities: make(map[int32]sysmon.Entity),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Limit returns the retention bound.
func (t *Tracker) Limit() int { return t.limit }

// Refresh runs one retention cycle. A failed enumeration returns an error and
// leaves the previous view untouched; per-process failures are absorbed.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	ctx, span := tracer.Start(ctx, "Tracker.Refresh")
	defer span.End()

	start := t.now()
	candidates, err := t.sampler.ListCandidates(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list candidates")
		return apperrors.WrapError(err, "list candidates")
	}

	top := rank(candidates, t.limit)
	cpuByPID := make(map[int32]float64, len(top))
	for _, c := range top {
		cpuByPID[c.PID] = c.CPUPercent
	}

	t.mu.RLock()
	prev := t.entities
	prevSystem := t.system
	t.mu.RUnlock()

	stats := RefreshStats{Candidates: len(candidates)}
	next := make(map[int32]sysmon.Entity, len(top))

	for pid := range prev {
		if _, ok := cpuByPID[pid]; !ok {
			stats.Removed++
		}
	}

	for _, c := range top {
		_, tracked := prev[c.PID]
		e, err := t.sampler.SampleEntity(ctx, c.PID)
		if err != nil {
			if !apperrors.IsTransient(err) && !errors.Is(err, context.Canceled) {
				t.logger.Debug("sample entity failed", logging.Int32("pid", c.PID), logging.Err(err))
			}
			if tracked {
				stats.Dropped++
			} else {
				stats.Skipped++
			}
			continue
		}
		e.CPUPercent = c.CPUPercent
		next[c.PID] = e
		if !tracked {
			stats.Added++
		}
	}

	system, err := t.sampler.SampleSystem(ctx)
	if err != nil {
		t.logger.Error("system sample failed, keeping previous snapshot", err)
		system = prevSystem
	}

	stats.Tracked = len(next)
	finished := t.now()
	stats.Duration = finished.Sub(start)

	t.mu.Lock()
	t.entities = next
	t.system = system
	t.lastRefresh = finished
	t.stats = stats
	t.mu.Unlock()

	span.SetAttributes(
		attribute.Int("candidates", stats.Candidates),
		attribute.Int("tracked", stats.Tracked),
		attribute.Int("added", stats.Added),
		attribute.Int("removed", stats.Removed+stats.Dropped),
	)
	return nil
}

// rank stable-sorts candidates by CPU descending and returns the first n.
// Equal CPU readings keep enumeration order.
func rank(candidates []sysmon.Candidate, n int) []sysmon.Candidate {
	sorted := make([]sysmon.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CPUPercent > sorted[j].CPUPercent
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Processes returns every tracked entity, CPU descending.
func (t *Tracker) Processes() []sysmon.Entity {
	t.mu.RLock()
	out := make([]sysmon.Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, e)
	}
	t.mu.RUnlock()
	SortByCPU(out)
	return out
}

// Top returns at most n entities, CPU descending. n <= 0 means
// DefaultDisplayCount.
func (t *Tracker) Top(n int) []sysmon.Entity {
	if n <= 0 {
		n = DefaultDisplayCount
	}
	all := t.Processes()
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Get returns the tracked entity for pid.
func (t *Tracker) Get(pid int32) (sysmon.Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entities[pid]
	return e, ok
}

// Len returns the size of the retention set.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entities)
}

// System returns the latest host snapshot.
func (t *Tracker) System() sysmon.SystemSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.system
}

// LastRefresh returns when the last successful refresh completed.
func (t *Tracker) LastRefresh() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRefresh
}

// Stats returns counters from the last successful refresh.
func (t *Tracker) Stats() RefreshStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// SortByCPU orders entities by CPU descending, then PID ascending.
func SortByCPU(es []sysmon.Entity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].CPUPercent != es[j].CPUPercent {
			return es[i].CPUPercent > es[j].CPUPercent
		}
		return es[i].PID < es[j].PID
	})
}

// FilterByName keeps entities whose name contains query, case-insensitively.
// An empty query returns es unchanged.
func FilterByName(es []sysmon.Entity, query string) []sysmon.Entity {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return es
	}
	out := make([]sysmon.Entity, 0, len(es))
	for _, e := range es {
		if strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	return out
}
