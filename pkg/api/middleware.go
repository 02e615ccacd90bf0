package api

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stale client entries are swept once a minute and dropped after three
// minutes of silence.
const (
	limiterSweepInterval = 1 * time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

// GlobalRateLimiter hands each client IP its own token bucket. The
// deadline and plan endpoints sit behind a gateway, so the remote
// address is the gateway-resolved client, not a shared proxy.
type GlobalRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     rate.Limit
	burst   int
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGlobalRateLimiter creates a limiter allowing rps requests per
// second with the given burst per client IP, and starts the background
// sweep of idle clients.
func NewGlobalRateLimiter(rps float64, burst int) *GlobalRateLimiter {
	rl := &GlobalRateLimiter{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go rl.sweep()
	return rl
}

func (rl *GlobalRateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[ip]
	if !ok {
		lim := rate.NewLimiter(rl.rps, rl.burst)
		rl.clients[ip] = &client{limiter: lim, lastSeen: time.Now()}
		return lim
	}
	c.lastSeen = time.Now()
	return c.limiter
}

func (rl *GlobalRateLimiter) sweep() {
	for {
		time.Sleep(limiterSweepInterval)
		rl.mu.Lock()
		for ip, c := range rl.clients {
			if time.Since(c.lastSeen) > limiterIdleTTL {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// retryAfter is the time until one token refills, rounded up to whole
// seconds, floored at one.
func (rl *GlobalRateLimiter) retryAfter() int {
	secs := int(math.Ceil(1 / float64(rl.rps)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Middleware enforces the per-IP limit, answering 429 with a
// Retry-After derived from the refill rate.
func (rl *GlobalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
		}

		if !rl.limiterFor(ip).Allow() {
			WriteTooManyRequests(w, r, rl.retryAfter())
			return
		}

		next.ServeHTTP(w, r)
	})
}
