// Package metrics exposes the monitor's own health: Prometheus collectors for
// polling, snapshot persistence and control actions, plus a runtime memory
// collector for the dashboard footer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agbru/taskmaster/internal/sysmon"
)

const namespace = "taskmaster"

// Registry owns a private Prometheus registry so tests and multiple
// monitors in one process never collide on global collector names.
type Registry struct {
	reg *prometheus.Registry

	pollCycles     prometheus.Counter
	pollFailures   prometheus.Counter
	pollDuration   prometheus.Histogram
	tracked        prometheus.Gauge
	systemCPU      prometheus.Gauge
	systemMemory   prometheus.Gauge
	systemDisk     prometheus.Gauge
	snapshotWrites *prometheus.CounterVec
	snapshotFails  prometheus.Counter
	controlActions *prometheus.CounterVec
	activeRequests prometheus.Gauge
	requestsTotal  prometheus.Counter
}

// NewRegistry creates and registers every collector, including the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed polling cycles.",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Polling cycles whose refresh returned an error.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent refreshing the tracked set.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_processes",
			Help:      "Processes currently in the retention set.",
		}),
		systemCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_cpu_percent",
			Help:      "Host CPU utilization at the last refresh.",
		}),
		systemMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_memory_percent",
			Help:      "Host memory utilization at the last refresh.",
		}),
		systemDisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_disk_percent",
			Help:      "Utilization of the monitored filesystem at the last refresh.",
		}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Successful storage operations by kind.",
		}, []string{"kind"}),
		snapshotFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Failed storage operations.",
		}),
		controlActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_actions_total",
			Help:      "Process control attempts by action and result.",
		}, []string{"action", "result"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "HTTP requests currently being served.",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.pollCycles, r.pollFailures, r.pollDuration,
		r.tracked, r.systemCPU, r.systemMemory, r.systemDisk,
		r.snapshotWrites, r.snapshotFails, r.controlActions,
		r.activeRequests, r.requestsTotal,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// RecordCycle counts one polling cycle.
func (r *Registry) RecordCycle(d time.Duration, err error) {
	r.pollCycles.Inc()
	r.pollDuration.Observe(d.Seconds())
	if err != nil {
		r.pollFailures.Inc()
	}
}

// ObserveView updates the tracked-set and host gauges.
func (r *Registry) ObserveView(tracked int, sys sysmon.SystemSnapshot) {
	r.tracked.Set(float64(tracked))
	r.systemCPU.Set(sys.CPUPercent)
	r.systemMemory.Set(sys.MemoryPercent)
	r.systemDisk.Set(sys.DiskPercent)
}

// SnapshotWritten counts a successful storage operation.
func (r *Registry) SnapshotWritten(kind string) {
	r.snapshotWrites.WithLabelValues(kind).Inc()
}

// SnapshotFailed counts a failed storage operation.
func (r *Registry) SnapshotFailed(string) {
	r.snapshotFails.Inc()
}

// ControlAction counts a control attempt.
func (r *Registry) ControlAction(action string, _ int32, _ string, ok bool) {
	result := "ok"
	if !ok {
		result = "denied"
	}
	r.controlActions.WithLabelValues(action, result).Inc()
}

// IncrementActiveRequests marks the start of an HTTP request.
func (r *Registry) IncrementActiveRequests() {
	r.activeRequests.Inc()
	r.requestsTotal.Inc()
}

// DecrementActiveRequests marks the end of an HTTP request.
func (r *Registry) DecrementActiveRequests() {
	r.activeRequests.Dec()
}
