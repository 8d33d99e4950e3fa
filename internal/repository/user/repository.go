package user

import (
	"context"
	"errors"

	"github.com/zhouzirui/rag-chat/backend/internal/model/user"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("user already exists with this email")
)

// Repository stores user accounts. Emails are unique and stored lower-case.
type Repository interface {
	Create(ctx context.Context, u *user.User) error
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	FindByID(ctx context.Context, id string) (*user.User, error)
}
