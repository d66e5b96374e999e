package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders sets the response headers every API reply carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// HostCheck returns 403 when r.Host does not match allowedHost. allowedHost
// is a bare hostname; a scheme or port in it is stripped.
func HostCheck(allowedHost string) func(http.Handler) http.Handler {
	want := bareHost(allowedHost)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if want == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.EqualFold(bareHost(r.Host), want) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("Forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bareHost(h string) string {
	h = strings.TrimSpace(h)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	h = strings.TrimSuffix(h, "/")
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}

// Limiters groups the per-IP buckets the router applies.
type Limiters struct {
	// Global covers every request: 5 req/s, burst 20.
	Global *IPLimiter
	// Auth covers signup and signin: one every 5s, burst 3.
	Auth *IPLimiter
	// Vendor covers routes that call the transaction controls API, whose
	// sandbox quota is small: 1 req/s, burst 5.
	Vendor *IPLimiter
}

// DefaultLimiters returns the production bucket sizes.
func DefaultLimiters() Limiters {
	return Limiters{
		Global: NewIPLimiter(rate.Limit(5), 20),
		Auth:   NewIPLimiter(rate.Every(5*time.Second), 3),
		Vendor: NewIPLimiter(rate.Limit(1), 5),
	}
}

// ProductionSecurity returns the middleware stack for production:
// SecurityHeaders, HostCheck, then the global limiter.
func ProductionSecurity(allowedHost string, global *IPLimiter) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders,
		HostCheck(allowedHost),
		global.Limit("Too many requests. Please slow down.", nil),
	}
}
