package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type window struct {
	count      int
	windowEnds time.Time
}

type LoginRateLimiter struct {
	inner *ipRateLimiter
}

type IPRateLimiter struct {
	inner *ipRateLimiter
}

type ipRateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	now        func() time.Time
	windows    map[string]window
}

func NewLoginRateLimiter(limit int, w time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{inner: newIPRateLimiter(limit, w, 0)}
}

func NewIPRateLimiter(limit int, w time.Duration) *IPRateLimiter {
	return &IPRateLimiter{inner: newIPRateLimiter(limit, w, 0)}
}

// NewIPRateLimiterWithMaxEntries bounds the number of tracked client IPs.
// When the table is full, expired windows are dropped first and then the
// window closest to expiry.
func NewIPRateLimiterWithMaxEntries(limit int, w time.Duration, maxEntries int) *IPRateLimiter {
	return &IPRateLimiter{inner: newIPRateLimiter(limit, w, maxEntries)}
}

func newIPRateLimiter(limit int, w time.Duration, maxEntries int) *ipRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if w <= 0 {
		w = time.Minute
	}
	return &ipRateLimiter{
		limit:      limit,
		window:     w,
		maxEntries: maxEntries,
		now:        time.Now,
		windows:    map[string]window{},
	}
}

func (rl *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return rl.inner.middleware("Too many login attempts", next)
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return func(next http.Handler) http.Handler {
		return rl.inner.middleware(message, next)
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.windows[ip]
	if !ok && rl.maxEntries > 0 && len(rl.windows) >= rl.maxEntries {
		rl.evict(now)
	}
	if entry.windowEnds.Before(now) {
		entry = window{windowEnds: now.Add(rl.window)}
	}
	entry.count++
	rl.windows[ip] = entry
	return entry.count <= rl.limit
}

func (rl *ipRateLimiter) evict(now time.Time) {
	for ip, w := range rl.windows {
		if w.windowEnds.Before(now) {
			delete(rl.windows, ip)
		}
	}
	if len(rl.windows) < rl.maxEntries {
		return
	}
	var oldest string
	var oldestEnds time.Time
	for ip, w := range rl.windows {
		if oldest == "" || w.windowEnds.Before(oldestEnds) {
			oldest, oldestEnds = ip, w.windowEnds
		}
	}
	delete(rl.windows, oldest)
}

func (rl *ipRateLimiter) middleware(message string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r.RemoteAddr)
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip) {
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", message, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
