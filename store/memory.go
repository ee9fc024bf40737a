package store

import (
	"context"
	"sync"

	"github.com/unicorntranscoder/unicornlb/session"
)

// Memory is the fallback store used when no Redis is configured. Records do
// not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*session.Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*session.Record)}
}

func (s *Memory) Set(_ context.Context, sessionID string, rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionID] = rec
	return nil
}

func (s *Memory) Get(_ context.Context, sessionID string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return rec, nil
}

func (s *Memory) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

var _ session.Store = (*Memory)(nil)
