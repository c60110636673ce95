package server

import (
	"net"
	"net/http"

	"interview-coach/internal/ratelimit"
)

// rateLimit отвечает 429, если клиент превысил лимит
func rateLimit(rl *ratelimit.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.IsAllowed(clientKey(r)) {
				writeError(w, http.StatusTooManyRequests, "too many requests, try again in a minute")
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
