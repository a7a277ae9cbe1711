// Package server exposes the tracked view over HTTP: JSON endpoints for the
// current processes and host snapshot, process control, stored history, a
// websocket feed of every polling cycle and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/agbru/taskmaster/internal/control"
	"github.com/agbru/taskmaster/internal/logging"
	"github.com/agbru/taskmaster/internal/orchestration"
	"github.com/agbru/taskmaster/internal/storage"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/tracker"
)

const (
	shutdownTimeout     = 5 * time.Second
	defaultHistoryHours = 1
	defaultTopLimit     = 5
	defaultTrendMinutes = 5
	maxProcessLimit     = 1000
)

// View is the read side of the tracker.
type View interface {
	Processes() []sysmon.Entity
	Top(n int) []sysmon.Entity
	Get(pid int32) (sysmon.Entity, bool)
	Len() int
	System() sysmon.SystemSnapshot
	LastRefresh() time.Time
}

// Controller performs process control actions.
type Controller interface {
	Terminate(ctx context.Context, pid int32) bool
	SetPriority(ctx context.Context, pid int32, class control.PriorityClass) bool
}

// History answers queries against stored snapshots.
type History interface {
	SystemHistory(ctx context.Context, since time.Time) ([]storage.SystemRecord, error)
	ProcessHistory(ctx context.Context, pid int32, since time.Time, limit int) ([]storage.ProcessRecord, error)
	TopByAverageCPU(ctx context.Context, limit int) ([]storage.ProcessAverage, error)
	ProcessTrend(ctx context.Context, name string, bucket time.Duration) ([]storage.TrendPoint, error)
	Events(ctx context.Context, since time.Time) ([]storage.EventRecord, error)
}

// Server serves the HTTP API.
type Server struct {
	addr         string
	view         View
	control      Controller
	history      History
	metrics      *Metrics
	hub          *Hub
	logger       logging.Logger
	security     SecurityConfig
	displayCount int
	version      string
	now          func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the history endpoints.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics shares a metrics binding with the rest of the application.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSecurity replaces DefaultSecurityConfig.
func WithSecurity(cfg SecurityConfig) Option {
	return func(s *Server) { s.security = cfg }
}

// WithDisplayCount sets the default number of processes returned.
func WithDisplayCount(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.displayCount = n
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server listening on addr once Run is called.
func New(addr string, view View, ctl Controller, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		view:         view,
		control:      ctl,
		logger:       logging.Nop,
		security:     DefaultSecurityConfig(),
		displayCount: tracker.DefaultDisplayCount,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.hub = NewHub(s.logger, s.security.CheckOrigin)
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.metricsMiddleware(SecurityMiddleware(s.security, h)))
	}
	route("GET /api/processes", s.handleProcesses)
	route("GET /api/processes/{pid}", s.handleProcess)
	route("GET /api/system", s.handleSystem)
	route("POST /api/processes/{pid}/terminate", s.handleTerminate)
	route("POST /api/processes/{pid}/priority", s.handlePriority)
	route("GET /api/history/system", s.handleSystemHistory)
	route("GET /api/history/processes/{pid}", s.handleProcessHistory)
	route("GET /api/history/top", s.handleTopHistory)
	route("GET /api/history/trend", s.handleTrend)
	route("GET /api/history/events", s.handleEvents)
	route("GET /healthz", s.handleHealth)
	route("OPTIONS /api/", func(http.ResponseWriter, *http.Request) {})
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Run serves until ctx is done, then shuts down gracefully. It returns
// nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http server listening", logging.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Info("graceful shutdown timed out, forcing close")
			_ = srv.Close()
			return nil
		}
		return err
	}
	s.logger.Info("http server closed")
	return nil
}

// Frame is one websocket message.
type Frame struct {
	Type        string                `json:"type"`
	Cycle       uint64                `json:"cycle,omitempty"`
	Error       string                `json:"error,omitempty"`
	Processes   []sysmon.Entity       `json:"processes"`
	System      sysmon.SystemSnapshot `json:"system"`
	Tracked     int                   `json:"tracked"`
	LastRefresh time.Time             `json:"last_refresh"`
}

func (s *Server) frame(kind string) Frame {
	return Frame{
		Type:        kind,
		Processes:   s.view.Top(s.displayCount),
		System:      s.view.System(),
		Tracked:     s.view.Len(),
		LastRefresh: s.view.LastRefresh(),
	}
}

// OnUpdate pushes the current view to websocket clients. It satisfies
// orchestration.Listener and returns without waiting on any client.
func (s *Server) OnUpdate(u orchestration.Update) {
	f := s.frame("update")
	f.Cycle = u.Cycle
	if u.Err != nil {
		f.Error = u.Err.Error()
	}
	s.hub.Broadcast(f)
}

var _ orchestration.Listener = (*Server)(nil)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.frame("hello"))
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit", s.displayCount, 1, maxProcessLimit)
	if !ok {
		return
	}
	procs := s.view.Processes()
	if q := r.URL.Query().Get("q"); q != "" {
		procs = tracker.FilterByName(procs, q)
	}
	if len(procs) > limit {
		procs = procs[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"processes":    procs,
		"tracked":      s.view.Len(),
		"last_refresh": s.view.LastRefresh(),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidParam(w, r)
	if !ok {
		return
	}
	e, found := s.view.Get(pid)
	if !found {
		s.writeError(w, http.StatusNotFound, "process not tracked")
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.view.System())
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidParam(w, r)
	if !ok {
		return
	}
	if !s.control.Terminate(r.Context(), pid) {
		s.writeError(w, http.StatusConflict, "terminate denied")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pid": pid, "action": control.ActionTerminate, "ok": true})
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.pidParam(w, r)
	if !ok {
		return
	}
	class, err := control.ParsePriorityClass(r.URL.Query().Get("class"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.control.SetPriority(r.Context(), pid, class) {
		s.writeError(w, http.StatusConflict, "priority change denied")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"pid": pid, "action": control.ActionSetPriority, "class": class.String(), "ok": true,
	})
}

func (s *Server) handleSystemHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	hours, ok := s.intParam(w, r, "hours", defaultHistoryHours, 1, s.security.MaxHistoryHours)
	if !ok {
		return
	}
	recs, err := s.history.SystemHistory(r.Context(), s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.internalError(w, "system history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleProcessHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	pid, ok := s.pidParam(w, r)
	if !ok {
		return
	}
	hours, ok := s.intParam(w, r, "hours", defaultHistoryHours, 1, s.security.MaxHistoryHours)
	if !ok {
		return
	}
	recs, err := s.history.ProcessHistory(r.Context(), pid, s.now().Add(-time.Duration(hours)*time.Hour), 0)
	if err != nil {
		s.internalError(w, "process history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTopHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	limit, ok := s.intParam(w, r, "limit", defaultTopLimit, 1, 100)
	if !ok {
		return
	}
	avgs, err := s.history.TopByAverageCPU(r.Context(), limit)
	if err != nil {
		s.internalError(w, "top history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, avgs)
}

// handleTrend averages a process name's stored samples per bucket of
// ?bucket= minutes.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	minutes, ok := s.intParam(w, r, "bucket", defaultTrendMinutes, 1, 24*60)
	if !ok {
		return
	}
	points, err := s.history.ProcessTrend(r.Context(), name, time.Duration(minutes)*time.Minute)
	if err != nil {
		s.internalError(w, "process trend", err)
		return
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	hours, ok := s.intParam(w, r, "hours", defaultHistoryHours, 1, s.security.MaxHistoryHours)
	if !ok {
		return
	}
	events, err := s.history.Events(r.Context(), s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.internalError(w, "events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	last := s.view.LastRefresh()
	status := "ok"
	if last.IsZero() {
		status = "starting"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"version":      s.version,
		"tracked":      s.view.Len(),
		"last_refresh": last,
		"ws_clients":   s.hub.Len(),
	})
}

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history storage disabled")
		return false
	}
	return true
}

func (s *Server) pidParam(w http.ResponseWriter, r *http.Request) (int32, bool) {
	pid, err := strconv.ParseInt(r.PathValue("pid"), 10, 32)
	if err != nil || pid <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid pid")
		return 0, false
	}
	return int32(pid), true
}

// intParam reads an optional integer query parameter bounded to [lo, hi].
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		s.writeError(w, http.StatusBadRequest, "invalid "+name+": must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		return 0, false
	}
	return v, true
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("http "+what+" failed", err)
	s.writeError(w, http.StatusInternalServerError, what+" unavailable")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http response encode failed", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
