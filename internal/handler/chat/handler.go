package chat

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	authService "github.com/zhouzirui/rag-chat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/rag-chat/backend/internal/service/chat"
	"github.com/zhouzirui/rag-chat/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器，所有路由都需要已认证的身份
type Handler struct {
	manager  *chatService.Manager
	upgrader websocket.Upgrader
}

// New 创建聊天处理器
func New(manager *chatService.Manager, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/active", h.handleSelectSession)
	r.Post("/sessions/new", h.handleNewSession)
	r.Post("/messages", h.handleSendMessage)
	r.Get("/stream", h.handleStream)
	r.Get("/ws", h.handleWebSocket)
}

type sessionList struct {
	Sessions []chat.Summary `json:"sessions"`
	ActiveID string         `json:"activeId"`
}

func listSessions(store *chatService.Store) sessionList {
	sessions := store.Sessions()
	out := sessionList{
		Sessions: make([]chat.Summary, 0, len(sessions)),
		ActiveID: store.ActiveID(),
	}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, s.Summarize())
	}
	return out
}

// conversation 返回当前用户的会话，失败时已写入响应
func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*chatService.Conversation, bool) {
	identity, ok := authService.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Authorization header missing")
		return nil, false
	}

	conv, err := h.manager.Open(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("[chat] open workspace for %s failed: %v", identity.UserID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load chat sessions")
		return nil, false
	}
	return conv, true
}

// handleListSessions 列出会话，按最近活动排序
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, listSessions(conv.Store()))
}

// handleGetSession 获取单个会话及其消息
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	session, err := conv.Store().Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSelectSession 切换当前会话
func (h *Handler) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := conv.Select(r.Context(), payload.SessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, listSessions(conv.Store()))
}

// handleNewSession 清空当前会话，下次发送时创建新会话
func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	conv.New(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type sendRequest struct {
	Text       string           `json:"text"`
	Attachment *chat.Attachment `json:"attachment,omitempty"`
}

// handleSendMessage 发送消息并等待回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload sendRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := conv.Send(r.Context(), payload.Text, payload.Attachment)
	if err != nil {
		respondSendError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, turn)
}

// handleStream 以SSE推送一轮对话：先推送用户消息，回复到达后推送机器人消息
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	pending, err := conv.Begin(r.Context(), r.URL.Query().Get("message"), nil)
	if err != nil {
		respondSendError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEEvent(w, flusher, "user", map[string]interface{}{
		"sessionId": pending.Session.ID,
		"message":   pending.User,
	})

	turn, err := conv.Complete(r.Context(), pending)
	if err != nil {
		log.Printf("[stream] complete failed for session=%s: %v", pending.Session.ID, err)
		utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}

	utils.SendSSEEvent(w, flusher, "message", map[string]interface{}{
		"sessionId": turn.Session.ID,
		"message":   turn.Bot,
	})
	utils.SendSSEEvent(w, flusher, "end", map[string]interface{}{
		"sessionId": turn.Session.ID,
		"finished":  true,
	})
	log.Printf("[stream] completed turn for session=%s", turn.Session.ID)
}

func respondSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrSendInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[chat] send failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to send message")
	}
}
