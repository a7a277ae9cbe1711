package tracker

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agbru/taskmaster/internal/sysmon"
)

// fakeSampler is a deterministic in-memory OS. A PID listed in dead shows up
// in the enumeration but fails deep sampling.
type fakeSampler struct {
	mu    sync.Mutex
	cpu   []float64 // index i is pid i+1
	dead  map[int32]bool
	calls int
}

func (f *fakeSampler) ListCandidates(context.Context) ([]sysmon.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sysmon.Candidate, len(f.cpu))
	for i, c := range f.cpu {
		out[i] = sysmon.Candidate{PID: int32(i + 1), CPUPercent: c}
	}
	return out, nil
}

func (f *fakeSampler) SampleEntity(_ context.Context, pid int32) (sysmon.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.dead[pid] {
		return sysmon.Entity{}, notFound(pid)
	}
	return entity(pid, "proc"), nil
}

func (f *fakeSampler) SampleSystem(context.Context) (sysmon.SystemSnapshot, error) {
	return sysmon.SystemSnapshot{ProcessCount: len(f.cpu), SampledAt: fixedNow}, nil
}

func deadSet(flags []bool) map[int32]bool {
	m := make(map[int32]bool)
	for i, d := range flags {
		if d {
			m[int32(i+1)] = true
		}
	}
	return m
}

func snapshotMap(tr *Tracker) map[int32]sysmon.Entity {
	out := make(map[int32]sysmon.Entity)
	for _, e := range tr.Processes() {
		out[e.PID] = e
	}
	return out
}

func cpuGen() gopter.Gen {
	return gen.SliceOf(gen.Float64Range(0, 400))
}

// TestRetentionInvariants_PropertyBased checks the bound, rank membership and
// liveness of the retention set over two consecutive cycles with arbitrary
// workloads.
func TestRetentionInvariants_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("set never exceeds N and holds only live top-N PIDs", prop.ForAll(
		func(first, second []float64, deadFlags []bool, limit int) bool {
			fs := &fakeSampler{cpu: first, dead: map[int32]bool{}}
			tr := New(fs, WithLimit(limit), WithClock(fixedClock))
			if err := tr.Refresh(context.Background()); err != nil {
				return false
			}

			fs.cpu = second
			fs.dead = deadSet(deadFlags)
			if err := tr.Refresh(context.Background()); err != nil {
				return false
			}

			if tr.Len() > limit {
				t.Logf("len %d > limit %d", tr.Len(), limit)
				return false
			}
			cands, _ := fs.ListCandidates(context.Background())
			top := make(map[int32]bool)
			for _, c := range rank(cands, limit) {
				top[c.PID] = true
			}
			for _, e := range tr.Processes() {
				if !top[e.PID] {
					t.Logf("pid %d tracked but not in top-%d", e.PID, limit)
					return false
				}
				if fs.dead[e.PID] {
					t.Logf("dead pid %d still tracked", e.PID)
					return false
				}
				if !e.Running {
					return false
				}
			}
			return true
		},
		cpuGen(), cpuGen(), gen.SliceOf(gen.Bool()), gen.IntRange(1, 60),
	))

	properties.Property("refresh is idempotent when nothing changes", prop.ForAll(
		func(cpus []float64, deadFlags []bool, limit int) bool {
			fs := &fakeSampler{cpu: cpus, dead: deadSet(deadFlags)}
			tr := New(fs, WithLimit(limit), WithClock(fixedClock))
			_ = tr.Refresh(context.Background())
			a := snapshotMap(tr)
			_ = tr.Refresh(context.Background())
			b := snapshotMap(tr)
			return reflect.DeepEqual(a, b)
		},
		cpuGen(), gen.SliceOf(gen.Bool()), gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

// TestConcurrentReaders exercises readers against a running writer; run with
// -race to catch torn views.
func TestConcurrentReaders(t *testing.T) {
	fs := &fakeSampler{cpu: []float64{9, 8, 7, 6, 5, 4, 3, 2, 1}, dead: map[int32]bool{}}
	tr := New(fs, WithLimit(5))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				ps := tr.Processes()
				if len(ps) > 5 {
					t.Errorf("reader saw %d entities", len(ps))
					return
				}
				_ = tr.Top(3)
				_ = tr.System()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		if err := tr.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	cancel()
	wg.Wait()
}
