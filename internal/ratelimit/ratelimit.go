// Package ratelimit provides per-client token-bucket limiting keyed by
// identity and request class. Limits live in memory, which is sufficient for
// a single-process deployment.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class groups endpoints that share a budget.
type Class string

const (
	ClassAPI      Class = "api"
	ClassGenerate Class = "generate"
	ClassChat     Class = "chat"
	ClassAuth     Class = "auth"
)

// limits are requests per minute per identity.
var limits = map[Class]int{
	ClassAPI:      60,
	ClassGenerate: 10,
	ClassChat:     30,
	ClassAuth:     5,
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per (identity, class) pair and evicts
// buckets idle past the cleanup window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
	once    sync.Once
}

func New() *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether the identity has budget left in the class.
func (l *Limiter) Allow(identity string, class Class) bool {
	perMinute, ok := limits[class]
	if !ok {
		perMinute = limits[ClassAPI]
	}
	key := string(class) + ":" + identity

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Stop terminates the cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-3 * time.Minute)
			l.mu.Lock()
			for key, e := range l.entries {
				if e.lastSeen.Before(cutoff) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// ClientIP extracts the caller's address. X-Forwarded-For is honored only
// when the process is told it sits behind a trusted proxy; otherwise the
// header is attacker-controlled.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				fwd = fwd[:i]
			}
			if ip := strings.TrimSpace(fwd); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
