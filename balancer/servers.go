// Package balancer tracks the transcoder fleet and picks the least-loaded
// worker for new sessions. Workers announce themselves periodically; a
// worker that stops pinging falls out of rotation after the TTL.
package balancer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unicorntranscoder/unicornlb/session"
)

// Worker is a transcoder node as reported by its registration ping.
type Worker struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	MaxSessions int       `json:"maxSessions"`
	Sessions    int       `json:"sessions"`
	LastSeen    time.Time `json:"lastSeen"`
}

func (w Worker) load() float64 {
	max := w.MaxSessions
	if max <= 0 {
		max = 1
	}
	return float64(w.Sessions) / float64(max)
}

type Manager struct {
	ttl    time.Duration
	logger zerolog.Logger

	mu      sync.RWMutex
	workers map[string]Worker // keyed by base URL
}

func NewManager(ttl time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		ttl:     ttl,
		logger:  logger.With().Str("component", "balancer").Logger(),
		workers: make(map[string]Worker),
	}
}

// Update registers or refreshes a worker from its ping.
func (m *Manager) Update(w Worker) {
	if w.URL == "" {
		return
	}
	w.LastSeen = time.Now()
	m.mu.Lock()
	m.workers[w.URL] = w
	m.mu.Unlock()
	m.logger.Debug().Str("worker", w.URL).Int("sessions", w.Sessions).Msg("worker ping")
}

// ChooseServer implements session.Selector: the alive worker with the lowest
// load ratio wins, ties broken by session count then name for determinism.
// The client address is accepted for interface compatibility but unused.
func (m *Manager) ChooseServer(_ context.Context, _, _ string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alive := make([]Worker, 0, len(m.workers))
	deadline := time.Now().Add(-m.ttl)
	for _, w := range m.workers {
		if w.LastSeen.After(deadline) {
			alive = append(alive, w)
		}
	}
	if len(alive) == 0 {
		return "", session.ErrNoWorker
	}
	sort.Slice(alive, func(i, j int) bool {
		if alive[i].load() != alive[j].load() {
			return alive[i].load() < alive[j].load()
		}
		if alive[i].Sessions != alive[j].Sessions {
			return alive[i].Sessions < alive[j].Sessions
		}
		return alive[i].Name < alive[j].Name
	})
	return alive[0].URL, nil
}

// Snapshot returns the current fleet, stale workers included, sorted by name.
func (m *Manager) Snapshot() []Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workers := make([]Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].Name < workers[j].Name
	})
	return workers
}

var _ session.Selector = (*Manager)(nil)
