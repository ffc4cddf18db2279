package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// defaultRateLimit is the sustained request rate allowed per client IP on the
// query and search endpoints when no explicit limit is configured. Retrieval
// and generation are the expensive paths; the read-only endpoints are not
// rate limited.
const defaultRateLimit = 10

// defaultRateBurst allows short spikes per client without immediate 429s.
const defaultRateBurst = 20

// clientTTL is how long an idle client's bucket survives before eviction.
const clientTTL = 5 * time.Minute

// evictInterval is how often the eviction sweep runs.
const evictInterval = time.Minute

// bucket pairs a client's token bucket with its last-activity timestamp.
type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client-IP token-bucket limit. Buckets for idle
// clients are swept periodically so the map stays bounded.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rps   rate.Limit
	burst int
	log   *slog.Logger
}

// newRateLimiter builds a limiter and starts its eviction sweep. The returned
// stop function terminates the sweep goroutine; the server calls it on
// shutdown.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rl.sweep(time.Now())
			}
		}
	}()

	return rl, func() { close(done) }
}

// allow reports whether the client identified by ip may proceed, creating
// its bucket on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.tokens.Allow()
}

// sweep drops buckets idle longer than clientTTL.
func (rl *rateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-clientTTL)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// middleware rejects over-limit requests with 429 and a Retry-After hint
// before they reach the retrieval pipeline.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is deliberately
// ignored: the server binds to loopback by default and a spoofable header
// must not select the bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
