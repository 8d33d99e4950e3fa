package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	authService "github.com/zhouzirui/rag-chat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/rag-chat/backend/internal/service/chat"
)

type answererFunc func(ctx context.Context, question string) (string, error)

func (f answererFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

func withUser(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authService.WithIdentity(r.Context(), authService.Identity{UserID: id})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func setupRouter(a chatService.Answerer) (*chi.Mux, *chatService.Manager) {
	manager := chatService.NewManager(a, nil)
	r := chi.NewRouter()
	r.Use(withUser("u1"))
	New(manager, func(*http.Request) bool { return true }).RegisterRoutes(r)
	return r, manager
}

func echoAnswerer() answererFunc {
	return func(_ context.Context, q string) (string, error) {
		return "echo: " + q, nil
	}
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSendMessageReturnsTurn(t *testing.T) {
	r, _ := setupRouter(echoAnswerer())

	resp := doJSON(r, http.MethodPost, "/messages", map[string]string{"text": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var turn struct {
		Session chat.Session `json:"session"`
		User    chat.Message `json:"userMessage"`
		Bot     chat.Message `json:"botMessage"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &turn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if turn.User.Role != chat.RoleUser || turn.Bot.Role != chat.RoleBot {
		t.Fatalf("unexpected roles %s/%s", turn.User.Role, turn.Bot.Role)
	}
	if turn.Bot.Content != "echo: hello" || len(turn.Session.Messages) != 2 || turn.Session.Title != "hello" {
		t.Fatalf("unexpected turn %+v", turn)
	}
}

func TestSendMessageWithAttachmentOnly(t *testing.T) {
	r, _ := setupRouter(echoAnswerer())

	resp := doJSON(r, http.MethodPost, "/messages", map[string]interface{}{
		"attachment": map[string]interface{}{"name": "report.pdf", "size": 2048, "type": "application/pdf"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "File: report.pdf") || !strings.Contains(body, "echo: Uploaded file: report.pdf") {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSendMessageEmpty(t *testing.T) {
	r, _ := setupRouter(echoAnswerer())

	resp := doJSON(r, http.MethodPost, "/messages", map[string]string{"text": "   "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	list := doJSON(r, http.MethodGet, "/sessions", nil)
	if !strings.Contains(list.Body.String(), `"sessions":[]`) {
		t.Fatalf("empty send must not create a session: %s", list.Body.String())
	}
}

func TestSendMessageInFlightConflict(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r, _ := setupRouter(answererFunc(func(_ context.Context, q string) (string, error) {
		close(started)
		<-release
		return "done", nil
	}))

	done := make(chan int, 1)
	go func() {
		done <- doJSON(r, http.MethodPost, "/messages", map[string]string{"text": "first"}).Code
	}()
	<-started

	if resp := doJSON(r, http.MethodPost, "/messages", map[string]string{"text": "second"}); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first send: expected 200, got %d", code)
	}
}

func TestSessionsSelectAndNew(t *testing.T) {
	r, manager := setupRouter(echoAnswerer())

	doJSON(r, http.MethodPost, "/messages", map[string]string{"text": "first topic"})
	if resp := doJSON(r, http.MethodPost, "/sessions/new", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	doJSON(r, http.MethodPost, "/messages", map[string]string{"text": "second topic"})

	conv, _ := manager.Open(context.Background(), "u1")
	sessions := conv.Store().Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	first := sessions[1]

	resp := doJSON(r, http.MethodPost, "/sessions/active", map[string]string{"sessionId": first.ID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var list sessionList
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.ActiveID != first.ID || len(list.Sessions) != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	if resp := doJSON(r, http.MethodPost, "/sessions/active", map[string]string{"sessionId": "missing"}); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if conv.Store().ActiveID() != first.ID {
		t.Fatal("failed select must leave the active session unchanged")
	}

	resp = doJSON(r, http.MethodGet, "/sessions/"+first.ID, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "echo: first topic") {
		t.Fatalf("unexpected session body %d %s", resp.Code, resp.Body.String())
	}
	if resp := doJSON(r, http.MethodGet, "/sessions/missing", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRoutesRequireIdentity(t *testing.T) {
	r := chi.NewRouter()
	New(chatService.NewManager(echoAnswerer(), nil), nil).RegisterRoutes(r)

	if resp := doJSON(r, http.MethodGet, "/sessions", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestStreamEmitsUserThenMessage(t *testing.T) {
	r, _ := setupRouter(echoAnswerer())

	req := httptest.NewRequest(http.MethodGet, "/stream?message=hi%20there", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}

	var events []string
	scanner := bufio.NewScanner(strings.NewReader(resp.Body.String()))
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	if strings.Join(events, ",") != "user,message,end" {
		t.Fatalf("unexpected events %v", events)
	}
	if !strings.Contains(resp.Body.String(), "echo: hi there") {
		t.Fatalf("missing reply in stream: %s", resp.Body.String())
	}
}

func TestStreamEmptyMessage(t *testing.T) {
	r, _ := setupRouter(echoAnswerer())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
