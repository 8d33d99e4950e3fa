package user_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	model "github.com/zhouzirui/rag-chat/backend/internal/model/user"
	"github.com/zhouzirui/rag-chat/backend/internal/repository/user"
)

// newMongoRepository connects to MONGODB_URI and returns a repository over a
// throwaway database, or skips when no server is configured.
func newMongoRepository(t *testing.T) *user.MongoRepository {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := user.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	db := client.Database(fmt.Sprintf("ragchat_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db.Drop(cleanupCtx)
		client.Disconnect(cleanupCtx)
	})

	repo, err := user.NewMongoRepository(ctx, db)
	if err != nil {
		t.Fatalf("NewMongoRepository: %v", err)
	}
	return repo
}

func TestMongoRepositoryCreateAndFind(t *testing.T) {
	repo := newMongoRepository(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &model.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if _, err := bson.ObjectIDFromHex(u.ID); err != nil {
		t.Fatalf("Create should assign an ObjectID hex id, got %q", u.ID)
	}

	byEmail, err := repo.FindByEmail(ctx, "ada@example.com")
	if err != nil || byEmail.ID != u.ID || byEmail.PasswordHash != "hash" || !byEmail.CreatedAt.Equal(now) {
		t.Fatalf("FindByEmail: %+v, %v", byEmail, err)
	}
	byID, err := repo.FindByID(ctx, u.ID)
	if err != nil || byID.Email != "ada@example.com" {
		t.Fatalf("FindByID: %+v, %v", byID, err)
	}
}

func TestMongoRepositoryErrors(t *testing.T) {
	repo := newMongoRepository(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &model.User{Name: "Ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if err := repo.Create(ctx, &model.User{Name: "Other", Email: "ada@example.com"}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken from the unique index, got %v", err)
	}

	if _, err := repo.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.FindByID(ctx, bson.NewObjectID().Hex()); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "not-an-object-id"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}
