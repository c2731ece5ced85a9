// Package users manages platform operator accounts.
package users

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

type Service struct {
	repo store.UserRepository
	now  func() time.Time
}

func NewService(repo store.UserRepository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) List(ctx context.Context) ([]domain.PlatformUser, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

type UpsertRequest struct {
	FirebaseUID string
	Email       string
	DisplayName string
	Role        string
}

// Upsert registers an operator or refreshes the email and display name of
// an existing one. The role of an existing operator is left alone.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (domain.PlatformUser, error) {
	u, err := domain.NewPlatformUser(req.FirebaseUID, req.Email, req.DisplayName, domain.PlatformRole(req.Role), s.now())
	if err != nil {
		return domain.PlatformUser{}, err
	}
	stored, err := s.repo.UpsertUser(ctx, u)
	if err != nil {
		return domain.PlatformUser{}, errors.Wrap(err, "upsert user")
	}
	return stored, nil
}

// SetRole changes an operator's platform role.
func (s *Service) SetRole(ctx context.Context, id uuid.UUID, role string) (domain.PlatformUser, error) {
	r, err := domain.ParsePlatformRole(role)
	if err != nil {
		return domain.PlatformUser{}, err
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.PlatformUser{}, notFound(err)
	}
	u.Role = r
	u.UpdatedAt = s.now()
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return domain.PlatformUser{}, notFound(err)
	}
	log.Info().Str("user_id", id.String()).Str("role", string(r)).Msg("users: role changed")
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return notFound(err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf("user not found")
	}
	return errors.Wrap(err, "get user")
}
