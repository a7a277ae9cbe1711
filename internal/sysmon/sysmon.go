// Package sysmon samples host-wide and per-process resource usage through
// gopsutil.
package sysmon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	apperrors "github.com/agbru/taskmaster/internal/errors"
)

const (
	bytesPerMB = 1024 * 1024
	bytesPerGB = 1024 * 1024 * 1024
)

// proc is the part of *process.Process the sampler reads.
type proc interface {
	PercentWithContext(ctx context.Context, interval time.Duration) (float64, error)
	CreateTimeWithContext(ctx context.Context) (int64, error)
	NameWithContext(ctx context.Context) (string, error)
	StatusWithContext(ctx context.Context) ([]string, error)
	MemoryInfoWithContext(ctx context.Context) (*process.MemoryInfoStat, error)
	NumThreadsWithContext(ctx context.Context) (int32, error)
	UsernameWithContext(ctx context.Context) (string, error)
	CmdlineWithContext(ctx context.Context) (string, error)
	ExeWithContext(ctx context.Context) (string, error)
}

func openProcess(ctx context.Context, pid int32) (proc, error) {
	return process.NewProcessWithContext(ctx, pid)
}

// handle pins a process handle to the creation time it was opened with, so
// a reused PID is never mistaken for the process it replaced.
type handle struct {
	proc    proc
	created int64
	percent float64
}

// PsutilSampler implements Sampler on gopsutil. It keeps one process handle
// per PID so that CPU percentages are deltas between enumerations; the first
// reading of a new PID is 0.
type PsutilSampler struct {
	diskPath string
	now      func() time.Time
	open     func(ctx context.Context, pid int32) (proc, error)
	pids     func(ctx context.Context) ([]int32, error)

	mu      sync.Mutex
	handles map[int32]*handle
}

// NewPsutilSampler returns a sampler reporting disk usage for diskPath.
func NewPsutilSampler(diskPath string) *PsutilSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &PsutilSampler{
		diskPath: diskPath,
		now:      time.Now,
		open:     openProcess,
		pids:     process.PidsWithContext,
		handles:  make(map[int32]*handle),
	}
}

// ListCandidates enumerates every PID and reads its CPU delta. A cached
// handle whose creation time no longer matches the live process belongs to
// a recycled PID and is replaced. Handles of PIDs no longer listed are
// released.
func (s *PsutilSampler) ListCandidates(ctx context.Context) ([]Candidate, error) {
	pids, err := s.pids(ctx)
	if err != nil {
		return nil, apperrors.WrapError(err, "list pids")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int32]struct{}, len(pids))
	out := make([]Candidate, 0, len(pids))
	for _, pid := range pids {
		h, err := s.current(ctx, pid)
		if err != nil {
			delete(s.handles, pid)
			continue
		}
		pct, err := h.proc.PercentWithContext(ctx, 0)
		if err != nil {
			delete(s.handles, pid)
			continue
		}
		pct = max(pct, 0)
		h.percent = pct
		seen[pid] = struct{}{}
		out = append(out, Candidate{PID: pid, CPUPercent: pct})
	}
	for pid := range s.handles {
		if _, ok := seen[pid]; !ok {
			delete(s.handles, pid)
		}
	}
	return out, nil
}

// current returns the cached handle for pid, opening a new one when none is
// cached or the cached one predates the live process. Callers hold s.mu.
func (s *PsutilSampler) current(ctx context.Context, pid int32) (*handle, error) {
	p, err := s.open(ctx, pid)
	if err != nil {
		return nil, err
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, err
	}
	if h, ok := s.handles[pid]; ok && h.created == created {
		return h, nil
	}
	h := &handle{proc: p, created: created}
	s.handles[pid] = h
	return h, nil
}

// SampleEntity reads the full detail of one process. Name, status, memory,
// threads and creation time are required; username, command line and
// executable path are left empty when the OS refuses them.
func (s *PsutilSampler) SampleEntity(ctx context.Context, pid int32) (Entity, error) {
	s.mu.Lock()
	h, ok := s.handles[pid]
	s.mu.Unlock()

	var p proc
	var pct float64
	if ok {
		p, pct = h.proc, h.percent
	} else {
		np, err := s.open(ctx, pid)
		if err != nil {
			return Entity{}, notFound(pid, err)
		}
		p = np
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Entity{}, notFound(pid, err)
	}
	statuses, err := p.StatusWithContext(ctx)
	if err != nil {
		return Entity{}, notFound(pid, err)
	}
	status := ""
	if len(statuses) > 0 {
		status = statuses[0]
	}
	if status == process.Zombie {
		return Entity{}, notFound(pid, errors.New("zombie"))
	}
	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Entity{}, notFound(pid, err)
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return Entity{}, notFound(pid, err)
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return Entity{}, notFound(pid, err)
	}

	username, _ := p.UsernameWithContext(ctx)
	cmdline, _ := p.CmdlineWithContext(ctx)
	exe, _ := p.ExeWithContext(ctx)

	return Entity{
		PID:        pid,
		Name:       name,
		Username:   username,
		Status:     status,
		Running:    true,
		CPUPercent: pct,
		MemoryMB:   float64(memInfo.RSS) / bytesPerMB,
		NumThreads: threads,
		CreateTime: time.UnixMilli(created),
		Cmdline:    strings.TrimSpace(cmdline),
		Exe:        exe,
		SampledAt:  s.now(),
	}, nil
}

// SampleSystem collects host-wide metrics. CPU and memory are required;
// disk, network, load and uptime degrade to zero values on error.
func (s *PsutilSampler) SampleSystem(ctx context.Context) (SystemSnapshot, error) {
	snap := SystemSnapshot{DiskPath: s.diskPath, SampledAt: s.now()}

	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, apperrors.WrapError(err, "cpu percent")
	}
	if len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCount = n
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, apperrors.WrapError(err, "virtual memory")
	}
	snap.MemoryPercent = vm.UsedPercent
	snap.MemoryTotalGB = float64(vm.Total) / bytesPerGB
	snap.MemoryAvailableGB = float64(vm.Available) / bytesPerGB

	if du, err := disk.UsageWithContext(ctx, s.diskPath); err == nil {
		snap.DiskPercent = du.UsedPercent
		snap.DiskTotalGB = float64(du.Total) / bytesPerGB
		snap.DiskUsedGB = float64(du.Used) / bytesPerGB
	}
	if pids, err := process.PidsWithContext(ctx); err == nil {
		snap.ProcessCount = len(pids)
	}
	if io, err := net.IOCountersWithContext(ctx, false); err == nil && len(io) > 0 {
		snap.NetBytesSent = io[0].BytesSent
		snap.NetBytesRecv = io[0].BytesRecv
		snap.NetPacketsSent = io[0].PacketsSent
		snap.NetPacketsRecv = io[0].PacketsRecv
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1, snap.Load5, snap.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		snap.Uptime = time.Duration(up) * time.Second
	}
	return snap, nil
}

// notFound wraps any per-process read failure as a transient SampleError.
func notFound(pid int32, cause error) error {
	return apperrors.SampleError{PID: pid, Cause: errors.Join(apperrors.ErrNotFound, cause)}
}
