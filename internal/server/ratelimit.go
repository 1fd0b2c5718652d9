package server

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type scopeLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimit applies per-scope rate limiting to mutation routes so the
// engine's RateLimited handling has a real counterpart. Stale limiter
// entries are dropped opportunistically once the map grows.
func rateLimit(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*scopeLimiter)
	)

	limiterFor := func(scope string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		if len(limiters) > 1024 {
			cutoff := time.Now().Add(-30 * time.Minute)
			for s, sl := range limiters {
				if sl.lastAccess.Before(cutoff) {
					delete(limiters, s)
				}
			}
		}

		sl, ok := limiters[scope]
		if !ok {
			sl = &scopeLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
			limiters[scope] = sl
		}
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := ScopeFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing scope")
				return
			}

			if !limiterFor(scope).Allow() {
				writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many writes; slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
