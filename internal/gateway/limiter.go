package gateway

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL = 5 * time.Minute
	limiterMaxIPs  = 10000 // max tracked IPs to prevent memory exhaustion
)

// ipRateLimiter hands out a token bucket per client IP. A zero rate disables
// limiting.
type ipRateLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*ipLimiterEntry
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipRateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*ipLimiterEntry),
	}
}

// allow reports whether a request from remoteAddr may proceed.
func (l *ipRateLimiter) allow(remoteAddr string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	host := clientHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.clients[host]
	if !ok {
		if len(l.clients) >= limiterMaxIPs {
			l.evictOldestLocked()
		}
		e = &ipLimiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[host] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

func (l *ipRateLimiter) evictOldestLocked() {
	var oldestIP string
	var oldest time.Time
	for ip, e := range l.clients {
		if oldestIP == "" || e.lastSeen.Before(oldest) {
			oldestIP = ip
			oldest = e.lastSeen
		}
	}
	if oldestIP != "" {
		delete(l.clients, oldestIP)
	}
}

// cleanup drops entries idle for longer than limiterIdleTTL.
func (l *ipRateLimiter) cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-limiterIdleTTL)
	removed := 0
	for ip, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// run removes stale entries every minute until ctx is done.
func (l *ipRateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.cleanup(now)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
