package chat_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zhouzirui/rag-chat/backend/internal/config"
	model "github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rag-chat/backend/internal/service/answer"
	chat "github.com/zhouzirui/rag-chat/backend/internal/service/chat"
)

type answererFunc func(ctx context.Context, question string) (string, error)

func (f answererFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

type memorySnapshots struct {
	mu    sync.Mutex
	saved map[string]model.Workspace
	saves int
}

func (m *memorySnapshots) Load(_ context.Context, owner string) (*model.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.saved[owner]
	if !ok {
		return nil, nil
	}
	return &ws, nil
}

func (m *memorySnapshots) Save(_ context.Context, owner string, ws model.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]model.Workspace)
	}
	m.saved[owner] = ws
	m.saves++
	return nil
}

func TestConversationSendSuccess(t *testing.T) {
	var asked []string
	conv := chat.NewConversation("u1", chat.NewStore(), answererFunc(func(_ context.Context, q string) (string, error) {
		asked = append(asked, q)
		return "42", nil
	}), nil)

	turn, err := conv.Send(context.Background(), "What is the answer?", nil)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if turn.AskErr != nil {
		t.Fatalf("unexpected ask error: %v", turn.AskErr)
	}
	if turn.Bot.Role != model.RoleBot || turn.Bot.Content != "42" {
		t.Fatalf("unexpected bot message: %+v", turn.Bot)
	}
	if len(turn.Session.Messages) != 2 || turn.Session.LastMessage != "42" {
		t.Fatalf("unexpected session state: %+v", turn.Session)
	}
	if len(asked) != 1 || asked[0] != "What is the answer?" {
		t.Fatalf("unexpected questions: %v", asked)
	}
}

func TestConversationAttachmentDescribedAsText(t *testing.T) {
	var asked string
	conv := chat.NewConversation("u1", chat.NewStore(), answererFunc(func(_ context.Context, q string) (string, error) {
		asked = q
		return "ok", nil
	}), nil)

	if _, err := conv.Send(context.Background(), "", &model.Attachment{Name: "notes.txt", Size: 10}); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if asked != "Uploaded file: notes.txt" {
		t.Fatalf("attachment should be described as plain text, got %q", asked)
	}
}

func TestConversationBackendErrorBecomesBotMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := chat.NewStore()
	conv := chat.NewConversation("u1", store, answer.NewClient(config.RAGConfig{BaseURL: srv.URL}), nil)

	turn, err := conv.Send(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if !errors.Is(turn.AskErr, answer.ErrBackendError) {
		t.Fatalf("expected ErrBackendError, got %v", turn.AskErr)
	}
	if !strings.Contains(turn.Bot.Content, "status 500") {
		t.Fatalf("bot message should describe the failure, got %q", turn.Bot.Content)
	}

	// The reply phase adds exactly one message on top of the user message.
	if len(turn.Session.Messages) != 2 {
		t.Fatalf("expected user + one error reply, got %d", len(turn.Session.Messages))
	}
	if turn.Session.Messages[0].Role != model.RoleUser || turn.Session.Messages[1].Role != model.RoleBot {
		t.Fatalf("unexpected roles: %+v", turn.Session.Messages)
	}
	if store.Pending(turn.Session.ID) {
		t.Fatal("session must not stay pending after a failed ask")
	}

	// The session survives and accepts a retry.
	if _, err := conv.Send(context.Background(), "question again", nil); err != nil {
		t.Fatalf("retry err: %v", err)
	}
	got, _ := store.Session(turn.Session.ID)
	if len(got.Messages) != 4 {
		t.Fatalf("retry should land in the same session, got %d messages", len(got.Messages))
	}
}

func TestConversationSwitchDuringAsk(t *testing.T) {
	store := chat.NewStore()
	other, _, _ := store.SendUserMessage("other topic", nil)
	store.AppendResponse(other.ID, "other answer")
	store.NewSession()

	started := make(chan struct{})
	release := make(chan struct{})
	conv := chat.NewConversation("u1", store, answererFunc(func(_ context.Context, q string) (string, error) {
		close(started)
		<-release
		return "late answer", nil
	}), nil)

	done := make(chan chat.Turn, 1)
	go func() {
		turn, err := conv.Send(context.Background(), "slow question", nil)
		if err != nil {
			t.Errorf("Send err: %v", err)
		}
		done <- turn
	}()

	<-started
	if err := conv.Select(context.Background(), other.ID); err != nil {
		t.Fatalf("Select err: %v", err)
	}
	close(release)
	turn := <-done

	if turn.Session.ID == other.ID {
		t.Fatal("reply went to the session selected during the ask")
	}
	slow, _ := store.Session(turn.Session.ID)
	if slow.LastMessage != "late answer" || len(slow.Messages) != 2 {
		t.Fatalf("captured session should hold the reply: %+v", slow.Messages)
	}
	active, _ := store.Active()
	if active.ID != other.ID || len(active.Messages) != 2 {
		t.Fatalf("selected session must be untouched: %+v", active.Messages)
	}
}

func TestConversationRejectsConcurrentSend(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	conv := chat.NewConversation("u1", chat.NewStore(), answererFunc(func(_ context.Context, q string) (string, error) {
		if q == "first" {
			close(started)
			<-release
		}
		return "ok", nil
	}), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conv.Send(context.Background(), "first", nil)
	}()
	<-started

	if _, err := conv.Send(context.Background(), "second", nil); !errors.Is(err, chat.ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	close(release)
	<-done

	if _, err := conv.Send(context.Background(), "second", nil); err != nil {
		t.Fatalf("send after reply err: %v", err)
	}
}

func TestConversationAskSurvivesCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conv := chat.NewConversation("u1", chat.NewStore(), answererFunc(func(askCtx context.Context, q string) (string, error) {
		cancel()
		if askCtx.Err() != nil {
			return "", askCtx.Err()
		}
		return "finished", nil
	}), nil)

	turn, err := conv.Send(ctx, "question", nil)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if turn.Bot.Content != "finished" {
		t.Fatalf("ask should not observe caller cancellation, got %q", turn.Bot.Content)
	}
}

func TestConversationPersistsSnapshots(t *testing.T) {
	snaps := &memorySnapshots{}
	manager := chat.NewManager(answererFunc(func(context.Context, string) (string, error) {
		return "stored", nil
	}), snaps)

	conv, err := manager.Open(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	turn, err := conv.Send(context.Background(), "remember me", nil)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if snaps.saves != 2 {
		t.Fatalf("expected a save after the user message and after the reply, got %d", snaps.saves)
	}

	again, _ := manager.Open(context.Background(), "alice")
	if again != conv {
		t.Fatal("Open should reuse the live conversation")
	}

	fresh := chat.NewManager(nil, snaps)
	restored, err := fresh.Open(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	got, err := restored.Store().Session(turn.Session.ID)
	if err != nil {
		t.Fatalf("restored session missing: %v", err)
	}
	if got.LastMessage != "stored" || restored.Store().ActiveID() != turn.Session.ID {
		t.Fatalf("unexpected restored state: %+v", got)
	}

	if _, err := fresh.Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty owner")
	}
}

func TestDescribeError(t *testing.T) {
	cases := map[string]error{
		"could not be reached": &answer.Error{Kind: answer.ErrBackendUnavailable},
		"status 502":           &answer.Error{Kind: answer.ErrBackendError, Status: 502},
		"(blocked)":            &answer.Error{Kind: answer.ErrBackendRejected, Message: "blocked"},
		"was empty":            &answer.Error{Kind: answer.ErrInvalidInput},
		"disk on fire":         errors.New("disk on fire"),
	}
	for want, err := range cases {
		got := chat.DescribeError(err)
		if !strings.HasPrefix(got, "Failed to get response from AI service: ") || !strings.Contains(got, want) {
			t.Fatalf("DescribeError(%v) = %q, want it to contain %q", err, got, want)
		}
	}
}

func TestConversationBeginCompleteSplit(t *testing.T) {
	conv := chat.NewConversation("u1", chat.NewStore(), answererFunc(func(context.Context, string) (string, error) {
		return "reply", nil
	}), nil)

	pending, err := conv.Begin(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Begin err: %v", err)
	}
	if !conv.Store().Pending(pending.Session.ID) {
		t.Fatal("session should be pending between Begin and Complete")
	}
	if len(pending.Session.Messages) != 1 {
		t.Fatalf("expected only the user message, got %d", len(pending.Session.Messages))
	}

	turn, err := conv.Complete(context.Background(), pending)
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if conv.Store().Pending(pending.Session.ID) {
		t.Fatal("pending flag should clear after Complete")
	}
	if turn.User.ID != pending.User.ID || turn.Bot.Content != "reply" || len(turn.Session.Messages) != 2 {
		t.Fatalf("unexpected turn %+v", turn)
	}
}
