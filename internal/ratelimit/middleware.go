package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/logger"
)

// Observer counts rejected requests. It may be nil.
type Observer interface {
	ObserveRateLimited()
}

// Middleware limits requests per client address and action. It expects
// RemoteAddr to hold the real client address (chi's RealIP middleware).
// Store failures let the request through.
func Middleware(l *Limiter, action string, observer Observer) func(http.Handler) http.Handler {
	log := logger.Named("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := action + ":" + clientAddr(r)

			d, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warn(r.Context(), "rate limit store failed", logger.String("key", key), logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				if observer != nil {
					observer.ObserveRateLimited()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter(time.Now()).Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
