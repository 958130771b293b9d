package user

import (
	"context"

	"github.com/frahmantamala/expenseflow/internal"
)

type Repository interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
	GetPermissions(ctx context.Context, userID int64) ([]string, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// GetByID returns the user with permissions, or ErrUserNotFound.
func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to get user by id", err)
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}

	perms, err := s.repo.GetPermissions(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to get user permissions", err)
	}
	u.Permissions = perms

	return u, nil
}
