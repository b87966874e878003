package service

import (
	"context"
	"errors"
	"log/slog"

	"eventgate/internal/guest/models"
	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/sentinel"
)

// Store defines the persistence interface for guest profiles.
// Error Contract:
// - FindByToken returns sentinel.ErrNotFound when no profile exists
type Store interface {
	FindByToken(ctx context.Context, token string) (*models.Profile, error)
	Save(ctx context.Context, p *models.Profile) error
}

type Option func(*Service)

// Service resolves scanned tokens to guest profiles.
type Service struct {
	store  Store
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	if store == nil {
		panic("guest store is required")
	}
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// FindByToken returns the profile for token or a CodeNotFound error.
func (s *Service) FindByToken(ctx context.Context, token string) (*models.Profile, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "token is required")
	}
	p, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return p, nil
}

// Exists reports whether a profile is registered for token.
func (s *Service) Exists(ctx context.Context, token string) (bool, error) {
	_, err := s.FindByToken(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Register stores a new or updated profile.
func (s *Service) Register(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
	}
	s.logger.InfoContext(ctx, "guest registered", "token", p.Token)
	return p, nil
}
