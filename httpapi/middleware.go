package httpapi

import (
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// authMiddleware enforces X-API-Key when apiKey is non-empty (§6 "Auth").
// An empty apiKey disables the check entirely, matching the optional-auth
// contract.
func authMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing X-API-Key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// keyedRateLimiter applies a per-key token bucket (one bucket per API key,
// or per remote address when no key is presented), mirroring the teacher's
// AdaptiveRateLimiter's golang.org/x/time/rate foundation but scoped per
// caller instead of per process, and without the AIMD backoff/probe
// adjustment this spec has no signal to drive (§6 "Rate-limit").
type keyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newRateLimiter(perMinute int) *keyedRateLimiter {
	return &keyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

func (l *keyedRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

func (l *keyedRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.limiterFor(key).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
