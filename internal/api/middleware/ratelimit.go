package middleware

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"seatstitch/internal/ratelimit"
)

// RateLimit rejects callers over the limiter's window cap with 429 and
// Retry-After. It must run after Auth.
func RateLimit(l *ratelimit.Limiter, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := Caller(r.Context())
			if caller == "" {
				caller = clientIP(r)
			}

			if !l.Allow(caller) {
				secs := int(math.Ceil(l.RetryAfter(caller).Seconds()))
				if secs < 1 {
					secs = 1
				}
				logger.Printf("api: rate limited %s on %s | retry after: %ds", caller, r.URL.Path, secs)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeFailure(w, http.StatusTooManyRequests, "rate limit exceeded, retry in "+strconv.Itoa(secs)+"s")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
