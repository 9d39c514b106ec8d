package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// attemptLimiter caps attempts per client within a sliding window. Keys whose
// window has emptied are dropped on the next sweep, so a stream of distinct
// clients on a public endpoint does not grow the map forever.
type attemptLimiter struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, now: time.Now, clients: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	recent := trimBefore(l.clients[key], cutoff)
	if len(recent) >= l.max {
		l.clients[key] = recent
		return false
	}
	l.clients[key] = append(recent, now)
	return true
}

func (l *attemptLimiter) sweep(cutoff time.Time) {
	for key, attempts := range l.clients {
		if recent := trimBefore(attempts, cutoff); len(recent) == 0 {
			delete(l.clients, key)
		} else {
			l.clients[key] = recent
		}
	}
}

func (l *attemptLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// trimBefore drops attempts at or before cutoff. Attempts are appended in
// time order, so the survivors are a suffix.
func trimBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	for i, at := range attempts {
		if at.After(cutoff) {
			return attempts[i:]
		}
	}
	return nil
}

func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if addrPort, err := netip.ParseAddrPort(remote); err == nil {
		return addrPort.Addr().String()
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.String()
	}
	return remote
}
