package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

// UserService exposes user lookups for handlers.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

// MatchUsernames returns headers of users whose username contains the search
// string; used when picking initial members for a new fez.
func (s *UserService) MatchUsernames(ctx context.Context, search string, limit int) ([]*domain.UserHeader, error) {
	if search == "" {
		return nil, domain.ErrInvalidInput
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.users.MatchUsernames(ctx, search, limit)
}
