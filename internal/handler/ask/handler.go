package ask

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/rag-chat/backend/internal/service/answer"
	"github.com/zhouzirui/rag-chat/backend/pkg/utils"
)

const invalidQuestion = "Question is required and must be a string"

// Answerer 转发问题到答案服务
type Answerer interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Handler 单轮问答接口
type Handler struct {
	answerer Answerer
}

// New 创建问答处理器
func New(answerer Answerer) *Handler {
	return &Handler{answerer: answerer}
}

// RegisterRoutes 注册问答路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question interface{} `json:"question"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, invalidQuestion)
		return
	}

	question, ok := payload.Question.(string)
	if !ok || question == "" {
		utils.RespondError(w, http.StatusBadRequest, invalidQuestion)
		return
	}

	reply, err := h.answerer.Ask(r.Context(), question)
	if err != nil {
		if errors.Is(err, answer.ErrInvalidInput) {
			utils.RespondError(w, http.StatusBadRequest, invalidQuestion)
			return
		}
		log.Printf("[ask] answer service failed: %v", err)
		utils.RespondErrorDetails(w, http.StatusInternalServerError, "Failed to get response from AI service", err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"answer":  reply,
		"success": true,
	})
}
