package profile

import (
	"context"
	"sync"
)

// InMemoryStore is a simple in-process profile store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]Profile)}
}

func (s *InMemoryStore) FindOne(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	p.Topics = append([]string(nil), p.Topics...)
	return &p, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Topics = append([]string(nil), p.Topics...)
	s.profiles[p.UserID] = p
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
