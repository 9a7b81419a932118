package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"go.uber.org/zap"
)

// KeyedLimiter is a token bucket per client key. Keys idle for longer than
// the idle window are dropped. The window is never shorter than the time a
// bucket takes to refill.
type KeyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const defaultIdle = 10 * time.Minute

// NewKeyedLimiter allows rps requests per second per key with the given burst.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	idle := defaultIdle
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &KeyedLimiter{
		limiters: make(map[string]*keyedEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed now. At most once per
// idle window it also evicts idle keys.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	now := k.now()
	if k.lastSweep.IsZero() {
		k.lastSweep = now
	}
	if now.Sub(k.lastSweep) >= k.idle {
		k.sweepLocked(now)
	}
	e, ok := k.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now
	k.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep evicts every key idle for longer than the idle window and returns
// how many were removed.
func (k *KeyedLimiter) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sweepLocked(k.now())
}

func (k *KeyedLimiter) sweepLocked(now time.Time) int {
	n := 0
	for key, e := range k.limiters {
		if now.Sub(e.lastSeen) > k.idle {
			delete(k.limiters, key)
			n++
		}
	}
	k.lastSweep = now
	return n
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// rateLimit rejects requests over the client's budget with 429. RealIP runs
// first, so RemoteAddr is the client address.
func (s *Server) rateLimit(l *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r.RemoteAddr)
			if !l.Allow(key) {
				s.log.Warn("rate limit exceeded", zap.String("client", key), zap.String("path", r.URL.Path))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey strips the port from a host:port address.
func clientKey(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		switch addr[i] {
		case ':':
			return addr[:i]
		case ']':
			return addr
		}
	}
	return addr
}
