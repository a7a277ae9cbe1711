package sysmon

import "time"

// Entity is an immutable per-cycle snapshot of one process. Samplers only
// return entities for live processes, so Running is always true for
// anything held by a tracker; a process that stops or turns zombie is
// reported as ErrNotFound and drops out of the set.
type Entity struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	Username   string    `json:"username"`
	Status     string    `json:"status"`
	Running    bool      `json:"running"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"threads"`
	CreateTime time.Time `json:"create_time"`
	Cmdline    string    `json:"cmdline,omitempty"`
	Exe        string    `json:"exe,omitempty"`
	SampledAt  time.Time `json:"sampled_at"`
}

// Uptime returns how long the process has existed as of its sample time.
func (e Entity) Uptime() time.Duration {
	if e.CreateTime.IsZero() || e.SampledAt.Before(e.CreateTime) {
		return 0
	}
	return e.SampledAt.Sub(e.CreateTime)
}

// SystemSnapshot holds host-wide aggregate metrics for one cycle.
type SystemSnapshot struct {
	CPUPercent        float64       `json:"cpu_percent"`
	CPUCount          int           `json:"cpu_count"`
	MemoryPercent     float64       `json:"memory_percent"`
	MemoryTotalGB     float64       `json:"memory_total_gb"`
	MemoryAvailableGB float64       `json:"memory_available_gb"`
	DiskPercent       float64       `json:"disk_percent"`
	DiskTotalGB       float64       `json:"disk_total_gb"`
	DiskUsedGB        float64       `json:"disk_used_gb"`
	DiskPath          string        `json:"disk_path"`
	ProcessCount      int           `json:"process_count"`
	NetBytesSent      uint64        `json:"net_bytes_sent"`
	NetBytesRecv      uint64        `json:"net_bytes_recv"`
	NetPacketsSent    uint64        `json:"net_packets_sent"`
	NetPacketsRecv    uint64        `json:"net_packets_recv"`
	Load1             float64       `json:"load1"`
	Load5             float64       `json:"load5"`
	Load15            float64       `json:"load15"`
	Uptime            time.Duration `json:"uptime"`
	SampledAt         time.Time     `json:"sampled_at"`
}

// Candidate is the cheap per-process reading used for ranking.
type Candidate struct {
	PID        int32
	CPUPercent float64
}
