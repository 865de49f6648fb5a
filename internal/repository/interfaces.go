package repository

import (
	"context"
	"errors"

	"github.com/kindertrack/kindertrack-auth/internal/domain"
)

// ErrNotFound is returned when no row matches the lookup. Callers at the
// login boundary must not leak it to clients in a way that distinguishes an
// unknown account from a wrong password.
var ErrNotFound = errors.New("not found")

// UserRepository exposes persistence for platform accounts.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}
