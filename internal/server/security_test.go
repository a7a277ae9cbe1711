package server

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestDefaultSecurityConfig(t *testing.T) {
	cfg := DefaultSecurityConfig()

	if !cfg.EnableCORS {
		t.Error("CORS should be enabled by default")
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("AllowedOrigins = %v, want none", cfg.AllowedOrigins)
	}
	// Control endpoints are POST; history and views are GET.
	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodOptions} {
		if !slices.Contains(cfg.AllowedMethods, m) {
			t.Errorf("AllowedMethods %v lacks %s", cfg.AllowedMethods, m)
		}
	}
	if cfg.MaxHistoryHours != 7*24 {
		t.Errorf("MaxHistoryHours = %d, want one week", cfg.MaxHistoryHours)
	}
}

// serveThrough runs one request through SecurityMiddleware and reports
// whether the wrapped handler ran.
func serveThrough(cfg SecurityConfig, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := SecurityMiddleware(cfg, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})
	req := httptest.NewRequest(method, "/api/processes/42/terminate", http.NoBody)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec, called
}

func TestSecurityMiddleware_HardeningHeaders(t *testing.T) {
	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec, called := serveThrough(DefaultSecurityConfig(), method, "")
			if !called {
				t.Fatalf("%s should reach the handler", method)
			}
			if rec.Code != http.StatusAccepted {
				t.Errorf("status = %d, handler response should pass through", rec.Code)
			}
			for header, value := range want {
				if got := rec.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}
		})
	}
}

func TestSecurityMiddleware_CORS(t *testing.T) {
	restricted := SecurityConfig{
		EnableCORS:     true,
		AllowedOrigins: []string{"http://dashboard.local"},
		AllowedMethods: []string{"GET", "POST"},
	}
	open := SecurityConfig{
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}
	tests := []struct {
		name       string
		cfg        SecurityConfig
		origin     string
		wantOrigin string
	}{
		{"disabled", SecurityConfig{}, "http://dashboard.local", ""},
		{"default grants no origin", DefaultSecurityConfig(), "http://anywhere.example", ""},
		{"wildcard", open, "http://anywhere.example", "*"},
		{"wildcard without origin header", open, "", "*"},
		{"listed origin", restricted, "http://dashboard.local", "http://dashboard.local"},
		{"unlisted origin", restricted, "http://evil.example", ""},
		{"no origin on restricted list", restricted, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := serveThrough(tt.cfg, http.MethodGet, tt.origin)
			h := rec.Header()
			if got := h.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin == "" {
				return
			}
			if h.Get("Access-Control-Allow-Methods") == "" || h.Get("Access-Control-Max-Age") != "3600" {
				t.Errorf("incomplete CORS headers: %v", h)
			}
			if h.Get("Access-Control-Allow-Headers") != "Content-Type" {
				t.Errorf("Allow-Headers = %q", h.Get("Access-Control-Allow-Headers"))
			}
		})
	}
}

func TestSecurityMiddleware_PreflightStopsChain(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.AllowedOrigins = []string{"http://dashboard.local"}
	rec, called := serveThrough(cfg, http.MethodOptions, "http://dashboard.local")
	if called {
		t.Error("preflight must not reach the control handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
		t.Error("preflight should carry CORS headers")
	}
}

func TestSecurityMiddleware_RejectsCrossOriginWrites(t *testing.T) {
	listed := DefaultSecurityConfig()
	listed.AllowedOrigins = []string{"http://dashboard.local"}
	tests := []struct {
		name   string
		cfg    SecurityConfig
		method string
		origin string
		want   bool
	}{
		{"foreign post", DefaultSecurityConfig(), http.MethodPost, "http://evil.example", false},
		{"foreign delete", DefaultSecurityConfig(), http.MethodDelete, "http://evil.example", false},
		{"post without origin", DefaultSecurityConfig(), http.MethodPost, "", true},
		{"same host post", DefaultSecurityConfig(), http.MethodPost, "http://example.com", true},
		{"listed origin post", listed, http.MethodPost, "http://dashboard.local", true},
		{"unlisted origin post", listed, http.MethodPost, "http://evil.example", false},
		{"malformed origin", DefaultSecurityConfig(), http.MethodPost, "://", false},
		{"foreign read", DefaultSecurityConfig(), http.MethodGet, "http://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := serveThrough(tt.cfg, tt.method, tt.origin)
			if called != tt.want {
				t.Fatalf("handler called = %v, want %v", called, tt.want)
			}
			if !tt.want && rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", rec.Code)
			}
		})
	}
}

func TestSecurityConfig_CheckOrigin(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.AllowedOrigins = []string{"http://dashboard.local"}
	for origin, want := range map[string]bool{
		"":                        true,
		"http://dashboard.local":  true,
		"http://EXAMPLE.com":      true,
		"http://example.com:8080": false,
		"http://evil.example":     false,
		"https://dashboard.local": false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := cfg.CheckOrigin(req); got != want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
