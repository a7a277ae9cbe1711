package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agbru/taskmaster/internal/control"
	"github.com/agbru/taskmaster/internal/orchestration"
	"github.com/agbru/taskmaster/internal/storage"
	"github.com/agbru/taskmaster/internal/sysmon"
	"github.com/agbru/taskmaster/internal/tracker"
)

type fakeView struct {
	procs []sysmon.Entity
	sys   sysmon.SystemSnapshot
	last  time.Time
}

func (v *fakeView) Processes() []sysmon.Entity {
	out := append([]sysmon.Entity(nil), v.procs...)
	tracker.SortByCPU(out)
	return out
}

func (v *fakeView) Top(n int) []sysmon.Entity {
	out := v.Processes()
	if n <= 0 {
		n = tracker.DefaultDisplayCount
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (v *fakeView) Get(pid int32) (sysmon.Entity, bool) {
	for _, e := range v.procs {
		if e.PID == pid {
			return e, true
		}
	}
	return sysmon.Entity{}, false
}

func (v *fakeView) Len() int                      { return len(v.procs) }
func (v *fakeView) System() sysmon.SystemSnapshot { return v.sys }
func (v *fakeView) LastRefresh() time.Time        { return v.last }

type fakeController struct {
	mu      sync.Mutex
	allow   bool
	calls   []string
	classes []control.PriorityClass
}

func (c *fakeController) Terminate(context.Context, int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "terminate")
	return c.allow
}

func (c *fakeController) SetPriority(_ context.Context, _ int32, class control.PriorityClass) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "priority")
	c.classes = append(c.classes, class)
	return c.allow
}

func newView() *fakeView {
	return &fakeView{
		procs: []sysmon.Entity{
			{PID: 10, Name: "nginx", CPUPercent: 40},
			{PID: 11, Name: "postgres", CPUPercent: 25},
			{PID: 12, Name: "nginx-worker", CPUPercent: 5},
		},
		sys:  sysmon.SystemSnapshot{CPUPercent: 55, MemoryPercent: 60, ProcessCount: 312},
		last: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeView, *fakeController) {
	t.Helper()
	view := newView()
	ctl := &fakeController{allow: true}
	return New("127.0.0.1:0", view, ctl, opts...), view, ctl
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, http.NoBody))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandleProcesses(t *testing.T) {
	s, _, _ := newTestServer(t, WithDisplayCount(2))
	h := s.Handler()

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantPIDs []int32
	}{
		{"default limit", "/api/processes", http.StatusOK, []int32{10, 11}},
		{"explicit limit", "/api/processes?limit=3", http.StatusOK, []int32{10, 11, 12}},
		{"name filter", "/api/processes?q=NGINX&limit=5", http.StatusOK, []int32{10, 12}},
		{"zero limit", "/api/processes?limit=0", http.StatusBadRequest, nil},
		{"garbage limit", "/api/processes?limit=ten", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			body := decode[struct {
				Processes []sysmon.Entity `json:"processes"`
				Tracked   int             `json:"tracked"`
			}](t, rec)
			var pids []int32
			for _, p := range body.Processes {
				pids = append(pids, p.PID)
			}
			assert.Equal(t, tt.wantPIDs, pids)
			assert.Equal(t, 3, body.Tracked)
		})
	}
}

func TestHandleProcess(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/processes/11")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "postgres", decode[sysmon.Entity](t, rec).Name)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/processes/99").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/processes/abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/processes/-4").Code)
}

func TestHandleSystem(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/system")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 312, decode[sysmon.SystemSnapshot](t, rec).ProcessCount)
}

func TestHandleTerminate(t *testing.T) {
	s, _, ctl := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/processes/10/terminate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ok"])

	ctl.allow = false
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/processes/10/terminate").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/processes/10/terminate").Code)
	assert.Equal(t, []string{"terminate", "terminate"}, ctl.calls)
}

func TestHandlePriority(t *testing.T) {
	s, _, ctl := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/processes/11/priority?class=below-normal")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "below-normal", decode[map[string]any](t, rec)["class"])
	assert.Equal(t, []control.PriorityClass{control.BelowNormal}, ctl.classes)

	rec = do(t, h, http.MethodPost, "/api/processes/11/priority?class=turbo")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown priority class")

	ctl.allow = false
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/processes/11/priority?class=low").Code)
}

func TestHistoryEndpoints_Disabled(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()
	for _, target := range []string{
		"/api/history/system", "/api/history/processes/10", "/api/history/top",
		"/api/history/trend?name=nginx", "/api/history/events",
	} {
		assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, target).Code, target)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	store, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.InsertProcesses(ctx, newView().procs))
	require.NoError(t, store.InsertSystem(ctx, sysmon.SystemSnapshot{CPUPercent: 12}))
	require.NoError(t, store.LogEvent(ctx, "process_terminated", "pid 11", map[string]any{"pid": 11}))

	s, _, _ := newTestServer(t, WithHistory(store))
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/history/system?hours=2")
	require.Equal(t, http.StatusOK, rec.Code)
	sys := decode[[]storage.SystemRecord](t, rec)
	require.Len(t, sys, 1)
	assert.Equal(t, 12.0, sys[0].Snapshot.CPUPercent)

	rec = do(t, h, http.MethodGet, "/api/history/processes/11")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.ProcessRecord](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/history/top?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]storage.ProcessAverage](t, rec)
	require.Len(t, top, 2)
	assert.Equal(t, "nginx", top[0].Name)

	rec = do(t, h, http.MethodGet, "/api/history/trend?name=postgres&bucket=60")
	require.Equal(t, http.StatusOK, rec.Code)
	trend := decode[[]storage.TrendPoint](t, rec)
	require.Len(t, trend, 1)
	assert.Equal(t, 25.0, trend[0].CPUPercent)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/history/trend").Code)

	rec = do(t, h, http.MethodGet, "/api/history/events?hours=1")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]storage.EventRecord](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, "process_terminated", events[0].Type)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/history/system?hours=0").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/history/system?hours=1000").Code)
}

func TestHistoryEndpoints_StorageFailure(t *testing.T) {
	store, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	s, _, _ := newTestServer(t, WithHistory(store), WithLogger(newTestLogger()))
	rec := do(t, s.Handler(), http.MethodGet, "/api/history/top")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sql", "internal errors must not leak")
}

func TestHandleHealth(t *testing.T) {
	s, view, _ := newTestServer(t, WithVersion("v1.2.3"))
	h := s.Handler()

	body := decode[map[string]any](t, do(t, h, http.MethodGet, "/healthz"))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v1.2.3", body["version"])

	view.last = time.Time{}
	body = decode[map[string]any](t, do(t, h, http.MethodGet, "/healthz"))
	assert.Equal(t, "starting", body["status"])
}

func TestRoutes_SecurityAndPreflight(t *testing.T) {
	s, _, ctl := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodOptions, "/api/processes/10/terminate")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ctl.calls, "preflight must not reach the controller")

	rec = do(t, h, http.MethodGet, "/api/system")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "no origin is granted by default")
}

func TestRoutes_CrossSiteControlRejected(t *testing.T) {
	s, _, ctl := newTestServer(t)
	h := s.Handler()

	for _, target := range []string{"/api/processes/10/terminate", "/api/processes/10/priority?class=low"} {
		req := httptest.NewRequest(http.MethodPost, target, http.NoBody)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
	assert.Empty(t, ctl.calls, "a foreign origin must not reach the controller")

	req := httptest.NewRequest(http.MethodPost, "/api/processes/10/terminate", http.NoBody)
	req.Header.Set("Origin", "http://"+req.Host)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"terminate"}, ctl.calls)
}

func TestWebsocket_RejectsForeignOrigin(t *testing.T) {
	s, _, _ := newTestServer(t, WithSecurity(SecurityConfig{
		EnableCORS:      true,
		AllowedOrigins:  []string{"http://dashboard.local"},
		MaxHistoryHours: 24,
	}))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, s.Hub().Len())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": {"http://dashboard.local"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "hello", readFrame(t, conn).Type)
}

func TestRoutes_MetricsCountRequests(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, http.MethodGet, "/api/system")
	do(t, h, http.MethodGet, "/api/processes")

	body := do(t, h, http.MethodGet, "/metrics").Body.String()
	assert.Contains(t, body, "taskmaster_requests_total 2")
	assert.Contains(t, body, "taskmaster_active_requests 0")
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebsocket_HelloAndUpdates(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, 3, hello.Tracked)
	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	s.OnUpdate(orchestration.Update{Cycle: 7})
	s.OnUpdate(orchestration.Update{Cycle: 8, Err: errors.New("list candidates: boom")})

	u := readFrame(t, conn)
	assert.Equal(t, "update", u.Type)
	assert.Equal(t, uint64(7), u.Cycle)
	require.Len(t, u.Processes, 3)
	assert.Equal(t, int32(10), u.Processes[0].PID)

	u = readFrame(t, conn)
	assert.Equal(t, uint64(8), u.Cycle)
	assert.Contains(t, u.Error, "boom")

	s.Hub().Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_DropsFramesForSlowClients(t *testing.T) {
	h := NewHub(nil, nil)
	slow := &wsClient{send: make(chan []byte, 1)}
	require.True(t, h.register(slow))

	h.Broadcast(map[string]int{"n": 1})
	h.Broadcast(map[string]int{"n": 2})
	h.Broadcast(map[string]int{"n": 3})

	assert.Equal(t, int64(2), h.Dropped())
	assert.JSONEq(t, `{"n":1}`, string(<-slow.send))

	h.Close()
	_, open := <-slow.send
	assert.False(t, open)
	assert.False(t, h.register(&wsClient{send: make(chan []byte, 1)}), "closed hub rejects clients")
	assert.NotPanics(t, func() { h.Broadcast("late") })
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	s := New("127.0.0.1:-1", newView(), &fakeController{})
	assert.Error(t, s.Run(context.Background()))
}
