package storage

import (
	"context"
	"sync"
	"time"

	"chedauth/core"
)

// MockRepository is an in-memory user directory for tests.
type MockRepository struct {
	mu    sync.Mutex
	users map[string]*core.User
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		users: make(map[string]*core.User),
	}
}

func (r *MockRepository) UpsertUser(ctx context.Context, user *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.UserID]; ok {
		existing.UserName = user.UserName
		existing.UserImage = user.UserImage
		existing.UpdatedAt = user.UpdatedAt
		return nil
	}

	stored := *user
	r.users[user.UserID] = &stored
	return nil
}

func (r *MockRepository) FindByUserID(ctx context.Context, userID string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, core.ErrNotFound
	}

	copied := *user
	return &copied, nil
}

func (r *MockRepository) DeleteUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return core.ErrNotFound
	}
	delete(r.users, userID)
	return nil
}

// SeedUser pre-populates a record, bypassing upsert semantics.
func (r *MockRepository) SeedUser(userID, name, image string, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[userID] = &core.User{
		UserID:    userID,
		UserName:  name,
		UserImage: image,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
