package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	model "github.com/zhouzirui/rag-chat/backend/internal/model/user"
	repo "github.com/zhouzirui/rag-chat/backend/internal/repository/user"
)

const (
	maxNameLength     = 60
	minPasswordLength = 6
	bcryptCost        = 10
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = repo.ErrEmailTaken
)

// ValidationError reports a rejected signup field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Service handles account signup and login.
type Service struct {
	users repo.Repository
	now   func() time.Time
}

// NewService creates a Service over users.
func NewService(users repo.Repository) *Service {
	return &Service{users: users, now: func() time.Time { return time.Now().UTC() }}
}

// Signup validates the input, hashes the password and creates the account.
func (s *Service) Signup(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" || email == "" || password == "" {
		return nil, &ValidationError{Message: "Please provide name, email and password"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, &ValidationError{Message: "Name cannot be more than 60 characters"}
	}
	if !emailPattern.MatchString(email) {
		return nil, &ValidationError{Message: "Please provide a valid email"}
	}
	if len(password) < minPasswordLength {
		return nil, &ValidationError{Message: "Password must be at least 6 characters"}
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check existing email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
