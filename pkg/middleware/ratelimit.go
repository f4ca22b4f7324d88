package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/ratelimit"
)

// RateLimit allows each client limit requests per limiter window. Clients
// are identified by remote IP. Health endpoints are exempt.
func RateLimit(limiter *ratelimit.Limiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(clientKey(r), limit) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
