package sysmon

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	apperrors "github.com/agbru/taskmaster/internal/errors"
)

func TestSampleSystem_ReturnsValidRanges(t *testing.T) {
	s := NewPsutilSampler("/")
	snap, err := s.SampleSystem(context.Background())
	if err != nil {
		t.Skipf("system sampling unavailable: %v", err)
	}
	if snap.CPUPercent < 0 || snap.CPUPercent > 100 {
		t.Errorf("CPUPercent out of range: %f", snap.CPUPercent)
	}
	if snap.MemoryPercent <= 0 || snap.MemoryPercent > 100 {
		t.Errorf("MemoryPercent out of range: %f", snap.MemoryPercent)
	}
	if snap.MemoryTotalGB <= 0 {
		t.Error("expected non-zero total memory on a running system")
	}
	if snap.ProcessCount == 0 {
		t.Error("expected at least one process")
	}
	if snap.DiskPath != "/" {
		t.Errorf("DiskPath = %q", snap.DiskPath)
	}
}

func TestListCandidates_IncludesSelf(t *testing.T) {
	s := NewPsutilSampler("")
	cands, err := s.ListCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	self := int32(os.Getpid())
	found := false
	for _, c := range cands {
		if c.PID == self {
			found = true
		}
		if c.CPUPercent < 0 {
			t.Errorf("negative CPU for pid %d", c.PID)
		}
	}
	if !found {
		t.Errorf("own pid %d not among %d candidates", self, len(cands))
	}
	if len(s.handles) != len(cands) {
		t.Errorf("handle cache size %d, want %d", len(s.handles), len(cands))
	}
}

func TestListCandidates_PrunesHandles(t *testing.T) {
	s := NewPsutilSampler("/")
	s.handles[-42] = &handle{}
	if _, err := s.ListCandidates(context.Background()); err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if _, ok := s.handles[-42]; ok {
		t.Error("stale handle should be pruned")
	}
}

func TestSampleEntity_Self(t *testing.T) {
	s := NewPsutilSampler("/")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	e, err := s.SampleEntity(context.Background(), int32(os.Getpid()))
	if err != nil {
		t.Fatalf("SampleEntity(self): %v", err)
	}
	if !e.Running || e.Name == "" {
		t.Errorf("unexpected entity: %+v", e)
	}
	if e.MemoryMB <= 0 || e.NumThreads <= 0 {
		t.Errorf("expected memory and threads, got %+v", e)
	}
	if !e.SampledAt.Equal(fixed) {
		t.Errorf("SampledAt = %v, want %v", e.SampledAt, fixed)
	}
}

func TestSampleEntity_NotFound(t *testing.T) {
	s := NewPsutilSampler("/")
	_, err := s.SampleEntity(context.Background(), 1<<30)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !apperrors.IsTransient(err) {
		t.Error("not-found should be transient")
	}
}

func TestEntityUptime(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		e    Entity
		want time.Duration
	}{
		{"zero create time", Entity{SampledAt: start}, 0},
		{"clock skew", Entity{CreateTime: start.Add(time.Hour), SampledAt: start}, 0},
		{"one minute", Entity{CreateTime: start, SampledAt: start.Add(time.Minute)}, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.e.Uptime(); got != tt.want {
				t.Errorf("Uptime() = %s, want %s", got, tt.want)
			}
		})
	}
}

// fakeProc replays a fixed series of CPU readings for one process.
type fakeProc struct {
	name    string
	created int64
	pcts    []float64
	calls   int
}

func (f *fakeProc) PercentWithContext(context.Context, time.Duration) (float64, error) {
	i := min(f.calls, len(f.pcts)-1)
	f.calls++
	return f.pcts[i], nil
}

func (f *fakeProc) CreateTimeWithContext(context.Context) (int64, error) { return f.created, nil }
func (f *fakeProc) NameWithContext(context.Context) (string, error) { return f.name, nil }
func (f *fakeProc) StatusWithContext(context.Context) ([]string, error) {
	return []string{process.Running}, nil
}
func (f *fakeProc) MemoryInfoWithContext(context.Context) (*process.MemoryInfoStat, error) {
	return &process.MemoryInfoStat{RSS: 2 * bytesPerMB}, nil
}
func (f *fakeProc) NumThreadsWithContext(context.Context) (int32, error) { return 1, nil }
func (f *fakeProc) UsernameWithContext(context.Context) (string, error) { return "", nil }
func (f *fakeProc) CmdlineWithContext(context.Context) (string, error) { return "", nil }
func (f *fakeProc) ExeWithContext(context.Context) (string, error) { return "", nil }

// fakeHost serves a single PID whose live process can be swapped out.
func fakeHost(s *PsutilSampler, pid int32, live **fakeProc) {
	s.pids = func(context.Context) ([]int32, error) { return []int32{pid}, nil }
	s.open = func(context.Context, int32) (proc, error) { return *live, nil }
}

func TestListCandidates_ReplacesHandleOnPIDReuse(t *testing.T) {
	s := NewPsutilSampler("/")
	old := &fakeProc{name: "old", created: 1_000, pcts: []float64{0, 80}}
	live := old
	fakeHost(s, 7, &live)
	ctx := context.Background()

	for i, want := range []float64{0, 80} {
		cands, err := s.ListCandidates(ctx)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if len(cands) != 1 || cands[0].CPUPercent != want {
			t.Fatalf("round %d: candidates = %+v, want cpu %v", i, cands, want)
		}
	}

	// The PID is recycled by a process started later.
	live = &fakeProc{name: "new", created: 2_000, pcts: []float64{0, 15}}
	cands, err := s.ListCandidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cands[0].CPUPercent != 0 {
		t.Errorf("first reading of recycled pid = %v, want 0", cands[0].CPUPercent)
	}
	if old.calls != 2 {
		t.Errorf("stale handle read %d times, want 2", old.calls)
	}

	e, err := s.SampleEntity(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "new" || !e.CreateTime.Equal(time.UnixMilli(2_000)) {
		t.Errorf("entity = %q created %v, want the recycled process", e.Name, e.CreateTime)
	}
}

func TestListCandidates_ClampsNegativeCPU(t *testing.T) {
	s := NewPsutilSampler("/")
	live := &fakeProc{name: "skewed", created: 1, pcts: []float64{0, -12.5}}
	fakeHost(s, 9, &live)

	for range 2 {
		cands, err := s.ListCandidates(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if cands[0].CPUPercent < 0 {
			t.Fatalf("cpu = %v, want >= 0", cands[0].CPUPercent)
		}
	}
	if s.handles[9].percent != 0 {
		t.Errorf("cached percent = %v, want 0", s.handles[9].percent)
	}
}

func TestWarm_BusyProcessReportsCPU(t *testing.T) {
	if testing.Short() {
		t.Skip("burns CPU for half a second")
	}
	var stop atomic.Bool
	defer stop.Store(true)
	for range 2 {
		go func() {
			x := 0
			for !stop.Load() {
				x++
			}
			_ = x
		}()
	}

	s := NewPsutilSampler("/")
	ctx := context.Background()
	if err := Warm(ctx, s, 500*time.Millisecond); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	cands, err := s.ListCandidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	self := int32(os.Getpid())
	for _, c := range cands {
		if c.PID == self {
			if c.CPUPercent < 20 {
				t.Errorf("own cpu = %.1f%% while burning, want well above 0", c.CPUPercent)
			}
			return
		}
	}
	t.Fatalf("own pid %d not listed", self)
}

type idleSampler struct{ lists int }

func (i *idleSampler) SampleSystem(context.Context) (SystemSnapshot, error) {
	return SystemSnapshot{}, nil
}
func (i *idleSampler) SampleEntity(_ context.Context, pid int32) (Entity, error) {
	return Entity{}, notFound(pid, errors.New("idle"))
}
func (i *idleSampler) ListCandidates(context.Context) ([]Candidate, error) {
	i.lists++
	return nil, nil
}

func TestWarm_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &idleSampler{}
	if err := Warm(ctx, s, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Warm = %v, want context.Canceled", err)
	}
	if s.lists != 1 {
		t.Errorf("ListCandidates called %d times, want 1", s.lists)
	}
}
