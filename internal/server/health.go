package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers promptly
// even when a dependency hangs rather than refuses.
const probeTimeout = 5 * time.Second

// Pinger is implemented by each dependency that can report its own
// reachability: the Qdrant store, the embedding provider, and the LLM
// backend. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable, a descriptive
	// error otherwise.
	Ping(ctx context.Context) error

	// Name is the short label used in readiness responses, e.g. "qdrant".
	Name() string
}

// MultiPinger folds several probes into one. Probes run in order and the
// first failure wins, prefixed with the failing dependency's name.
type MultiPinger struct {
	pingers []Pinger
}

func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is the per-dependency entry in the /api/ready body.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady probes every registered dependency concurrently and reports
// 200 only when all of them answer. Unlike /api/health, which is pure
// liveness, this endpoint reflects real dependency state, so orchestrators
// can hold traffic until the pipeline can actually serve.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func(i int, p Pinger) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			check := readyCheck{Name: p.Name(), OK: true}
			if err := p.Ping(ctx); err != nil {
				check.OK = false
				check.Error = err.Error()
				log.Warn("readiness probe failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
			checks[i] = check
		}(i, p)
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			break
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
