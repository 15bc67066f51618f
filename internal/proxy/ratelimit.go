package proxy

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/technosupport/frl-toolbox/internal/ratelimit"
)

// RateLimit throttles each client address to cfg. Requests pass when redis
// is unavailable.
func RateLimit(l *ratelimit.Limiter, cfg ratelimit.LimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rl:ip:" + l.HashIP(clientIP(r))
			decision, err := l.Check(r.Context(), key, cfg)
			if errors.Is(err, ratelimit.ErrRedisUnavailable) {
				log.Printf("[proxy] rate limit unavailable, failing open: %v", err)
				next.ServeHTTP(w, r)
				return
			} else if err != nil {
				log.Printf("[proxy] rate limit error: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w, decision)
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}
