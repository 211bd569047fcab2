package account

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	// EnsureUser returns the row for u.Username, inserting u when absent. An
	// existing row is returned unchanged.
	EnsureUser(ctx context.Context, u *User) (*User, error)
}
