package server

import (
	"net/http"
	"net/url"
	"strings"
)

// SecurityConfig controls response hardening and CORS.
type SecurityConfig struct {
	EnableCORS     bool
	AllowedOrigins []string
	AllowedMethods []string

	// MaxHistoryHours bounds the hours parameter of history endpoints.
	MaxHistoryHours int
}

// DefaultSecurityConfig grants no cross-origin access: browsers may only
// reach the API from a page served by the same host, while clients that send
// no Origin header (curl, scripts) are unaffected.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableCORS:      true,
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		MaxHistoryHours: 7 * 24,
	}
}

// SecurityMiddleware sets defensive headers on every response, applies CORS
// and answers preflight requests without calling next. A state-changing
// request from a browser origin that CheckOrigin rejects gets 403.
func SecurityMiddleware(cfg SecurityConfig, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if cfg.EnableCORS {
			if origin, ok := allowedOrigin(cfg.AllowedOrigins, r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "3600")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !safeMethod(r.Method) && !cfg.CheckOrigin(r) {
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"origin not allowed"}` + "\n"))
			return
		}
		next(w, r)
	}
}

// CheckOrigin reports whether r may act on the server: requests without an
// Origin header, from a listed origin or from the server's own host pass.
func (cfg SecurityConfig) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := allowedOrigin(cfg.AllowedOrigins, origin); ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func allowedOrigin(allowed []string, origin string) (string, bool) {
	for _, a := range allowed {
		if a == "*" {
			return "*", true
		}
		if origin != "" && a == origin {
			return origin, true
		}
	}
	return "", false
}
