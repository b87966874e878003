package store

import (
	"context"
	"sync"

	"eventgate/internal/guest/models"
	"eventgate/pkg/platform/sentinel"
)

// InMemoryStore keeps guest profiles in process for local events and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	guests map[string]*models.Profile
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{guests: make(map[string]*models.Profile)}
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.guests[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Save inserts or replaces the profile for p.Token.
func (s *InMemoryStore) Save(_ context.Context, p *models.Profile) error {
	cp := *p
	s.mu.Lock()
	s.guests[p.Token] = &cp
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guests), nil
}
