package workspace_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rag-chat/backend/internal/repository/workspace"
)

func sampleWorkspace() chat.Workspace {
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return chat.Workspace{
		ActiveID: "s1",
		Sessions: []chat.Session{{
			ID:    "s1",
			Title: "hello",
			Messages: []chat.Message{
				{ID: "m1", Role: chat.RoleUser, Content: "hello", Timestamp: now,
					Attachment: &chat.Attachment{Name: "a.txt", Size: 3, MediaType: "text/plain"}},
				{ID: "m2", Role: chat.RoleBot, Content: "hi there", Timestamp: now},
			},
			LastMessage: "hi there",
			CreatedAt:   now,
			UpdatedAt:   now,
		}},
	}
}

func exerciseStore(t *testing.T, store workspace.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx, "nobody")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) for missing owner, got (%v, %v)", got, err)
	}

	if err := store.Save(ctx, "alice", sampleWorkspace()); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	got, err = store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if got == nil || got.ActiveID != "s1" || len(got.Sessions) != 1 {
		t.Fatalf("unexpected workspace: %+v", got)
	}
	session := got.Sessions[0]
	if len(session.Messages) != 2 || session.Messages[0].Attachment == nil || session.Messages[0].Attachment.Name != "a.txt" {
		t.Fatalf("messages not preserved: %+v", session.Messages)
	}
	if session.Messages[1].Role != chat.RoleBot || session.LastMessage != "hi there" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestMemoryStore(t *testing.T) {
	store, err := workspace.NewStore(workspace.DriverMemory)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	exerciseStore(t, store)

	got, _ := store.Load(context.Background(), "alice")
	got.Sessions[0].Title = "changed"
	again, _ := store.Load(context.Background(), "alice")
	if again.Sessions[0].Title != "hello" {
		t.Fatal("memory store must not alias loaded values")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := workspace.NewStore(workspace.DriverRedis, workspace.WithRedisClient(client), workspace.WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)

	if ttl := mr.TTL("workspace:alice"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
}

func TestRedisStoreCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := workspace.NewRedisStore(client, 0)
	defer store.Close()

	mr.Set("workspace:bob", "{not json")
	if _, err := store.Load(context.Background(), "bob"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := workspace.NewStore(workspace.DriverRedis); !errors.Is(err, workspace.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := workspace.NewStore("etcd"); !errors.Is(err, workspace.ErrInvalidDriver) {
		t.Fatalf("expected ErrInvalidDriver, got %v", err)
	}
}
