package store

import (
	"context"
	"sync"
	"time"

	"eventgate/internal/checkpoint/models"
	"eventgate/pkg/platform/sentinel"
	platformsync "eventgate/pkg/platform/sync"
)

// InMemoryStore keeps token records in process. Execute holds the token's
// shard lock across validate and mutate, so concurrent updates to one token
// are serialised while other tokens proceed.
type InMemoryStore struct {
	locks *platformsync.ShardedMutex

	mu      sync.RWMutex
	records map[string]*models.TokenRecord
	now     func() time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		locks:   platformsync.NewShardedMutex(0),
		records: make(map[string]*models.TokenRecord),
		now:     time.Now,
	}
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, token string) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(token).Clone(), nil
}

func (s *InMemoryStore) Execute(ctx context.Context, token string, validate func(*models.TokenRecord) error, mutate func(*models.TokenRecord)) (*models.TokenRecord, error) {
	s.locks.Lock(token)
	defer s.locks.Unlock(token)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	working := s.loadLocked(token).Clone()
	s.mu.Unlock()

	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)

	s.mu.Lock()
	s.records[token] = working
	s.mu.Unlock()
	return working.Clone(), nil
}

// loadLocked returns the stored record, inserting the default. Caller holds mu.
func (s *InMemoryStore) loadLocked(token string) *models.TokenRecord {
	r, ok := s.records[token]
	if !ok {
		r = models.NewTokenRecord(token, s.now())
		s.records[token] = r
	}
	return r
}
