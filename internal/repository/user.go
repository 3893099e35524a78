package repository

import (
	"context"

	"chatrelay/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateRefreshTokenHash(ctx context.Context, id int64, hash string) error
	Seed(ctx context.Context, users []domain.User) error
}
