package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit gives every client IP a token bucket holding limit requests that
// refills over per. A non-positive limit disables it. Rejections carry
// Retry-After.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 || per <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	every := rate.Every(per / time.Duration(limit))
	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep time.Time
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIPForRateLimit(r)
			now := time.Now()
			mu.Lock()
			// idle buckets are full again after per
			if now.Sub(lastSweep) > per {
				for k, c := range clients {
					if now.Sub(c.lastSeen) > per {
						delete(clients, k)
					}
				}
				lastSweep = now
			}
			c, ok := clients[ip]
			if !ok {
				c = &client{limiter: rate.NewLimiter(every, limit)}
				clients[ip] = c
			}
			c.lastSeen = now
			if !c.limiter.AllowN(now, 1) {
				res := c.limiter.ReserveN(now, 1)
				wait := res.DelayFrom(now)
				res.CancelAt(now)
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(wait.Seconds())))))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

// clientIPForRateLimit keys on RemoteAddr. Forwarding headers are resolved
// once by chi's RealIP ahead of this middleware; reading them again here
// would let a client pick its own bucket.
func clientIPForRateLimit(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
