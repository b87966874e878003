package store

import (
	"context"
	"sort"
	"sync"

	"eventgate/internal/accounts/models"
	"eventgate/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts keyed by lower-cased email.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]*models.Account)}
}

func (s *InMemoryStore) Create(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(a.Email)
	if _, ok := s.accounts[key]; ok {
		return sentinel.ErrConflict
	}
	cp := *a
	s.accounts[key] = &cp
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[models.NormalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(a.Email)
	if _, ok := s.accounts[key]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *a
	s.accounts[key] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(email)
	if _, ok := s.accounts[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.accounts, key)
	return nil
}

// ListApproved returns approved accounts with role, ordered by email.
func (s *InMemoryStore) ListApproved(_ context.Context, role models.Role) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.Role == role && a.Approved {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
