package server

import (
	"net/http"

	"github.com/agbru/taskmaster/internal/metrics"
)

// Metrics binds a metrics registry to the HTTP layer.
type Metrics struct {
	registry *metrics.Registry
	handler  http.Handler
}

// NewMetrics creates Metrics backed by a fresh registry.
func NewMetrics() *Metrics {
	return NewMetricsFor(metrics.NewRegistry())
}

// NewMetricsFor shares reg with the rest of the application so poll and
// snapshot counters appear on /metrics.
func NewMetricsFor(reg *metrics.Registry) *Metrics {
	return &Metrics{registry: reg, handler: reg.Handler()}
}

// IncrementActiveRequests marks the start of a request.
func (m *Metrics) IncrementActiveRequests() { m.registry.IncrementActiveRequests() }

// DecrementActiveRequests marks the end of a request.
func (m *Metrics) DecrementActiveRequests() { m.registry.DecrementActiveRequests() }

// WritePrometheus writes every registered metric in text format.
func (m *Metrics) WritePrometheus(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}

func (s *Server) metricsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.IncrementActiveRequests()
		defer s.metrics.DecrementActiveRequests()
		next(w, r)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.metrics.WritePrometheus(w, r)
}
