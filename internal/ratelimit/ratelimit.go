// Package ratelimit throttles unauthenticated auth endpoints per client IP.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quincarter/coffee-app-sub000/api"
)

// Registry manages one token-bucket limiter per client key.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRegistry allows perMinute requests per key per minute, with bursts of
// the same size.
func NewRegistry(perMinute int) *Registry {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Registry{
		limiters: make(map[string]*entry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether key may make another request now.
func (r *Registry) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Prune drops limiters idle for longer than the idle TTL and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	n := 0
	for k, e := range r.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(r.limiters, k)
			n++
		}
	}
	return n
}

// Len is the number of tracked keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Middleware rejects requests over the limit with 429. onLimit, if set, is
// called with route for each rejection.
func (r *Registry) Middleware(route string, logger *slog.Logger, onLimit func(route string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ip := ClientIP(req)
			if !r.Allow(ip) {
				logger.Info("rate limit exceeded", "route", route, "remote_ip", ip)
				if onLimit != nil {
					onLimit(route)
				}
				w.Header().Set("Retry-After", "60")
				if api.IsAPIRequest(req) {
					api.ReturnError(w, logger, api.TooManyRequests)
				} else {
					http.Error(w, "Too many requests, please try again shortly", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// ClientIP is the host part of RemoteAddr. Proxy headers are not trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
