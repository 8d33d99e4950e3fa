package user

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/rag-chat/backend/internal/model/user"
)

// MemoryRepository is a Repository for local development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]user.User
	byEmail map[string]string
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	r.byID[u.ID] = *u
	r.byEmail[u.Email] = u.ID
	return nil
}

// FindByEmail implements Repository.
func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	found := r.byID[id]
	return &found, nil
}

// FindByID implements Repository.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &found, nil
}
