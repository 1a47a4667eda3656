package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ipamd/internal/domain"
)

// clientLimiter keeps one token bucket per client address. Idle entries are
// dropped so the map does not grow without bound.
type clientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	limit    rate.Limit
	burst    int
	lastSeen time.Duration
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if perSecond <= 0 {
		perSecond = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &clientLimiter{
		clients:  make(map[string]*clientBucket),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		lastSeen: 10 * time.Minute,
	}
}

func (l *clientLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.clients[addr]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[addr] = b
	}
	b.seen = now

	if len(l.clients) > 1024 {
		for key, stale := range l.clients {
			if now.Sub(stale.seen) > l.lastSeen {
				delete(l.clients, key)
			}
		}
	}
	return b.limiter.Allow()
}

func (a *API) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.allow(clientAddr(r)) {
			a.Logger.WarnContext(r.Context(), "rate limit exceeded", "client", clientAddr(r))
			a.writeError(w, r, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	}
}
