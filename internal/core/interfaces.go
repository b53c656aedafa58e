package core

import (
	"context"
	"errors"
	"time"

	"github.com/target/webfront-auth/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations should depend on these interfaces, not concrete implementations.

// ErrUserNotFound is returned by user repositories when no user matches.
var ErrUserNotFound = errors.New("user not found")

// TouchSchemeParams groups parameters for UserRepository.TouchScheme.
type TouchSchemeParams struct {
	UserID int
	Scheme string
	At     time.Time
}

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error)
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByName(ctx context.Context, name string) (*model.User, error)
	// GetByExternalKey finds the user bound to key for scheme.
	GetByExternalKey(ctx context.Context, scheme, key string) (*model.User, error)
	LinkExternal(ctx context.Context, login *model.ExternalLogin) error
	SetPassword(ctx context.Context, userID int, passwordHash string) error
	// TouchScheme records a successful login and returns the refreshed user.
	TouchScheme(ctx context.Context, params TouchSchemeParams) (*model.User, error)
}
