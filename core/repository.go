package core

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Repository is the user directory: the only server-side state in the system.
// Tokens are never persisted here; they live inside the client-held cookies.
type Repository interface {
	// UpsertUser inserts the profile record, or on a user_id conflict updates
	// the mutable display fields (name, image) and updated_at only. It must
	// never overwrite created_at.
	UpsertUser(ctx context.Context, user *User) error

	FindByUserID(ctx context.Context, userID string) (*User, error)

	DeleteUser(ctx context.Context, userID string) error
}
