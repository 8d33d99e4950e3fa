package rag

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	ragService "github.com/zhouzirui/rag-chat/backend/internal/service/rag"
	"github.com/zhouzirui/rag-chat/backend/pkg/utils"
)

// Answerer 问答引擎
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Handler 问答后端的 /ask 接口
type Handler struct {
	engine Answerer
}

// New 创建问答后端处理器
func New(engine Answerer) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes 注册问答后端路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ask", h.handleAsk)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	utils.RespondJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question *string `json:"question"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		respondDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if payload.Question == nil {
		respondDetail(w, http.StatusUnprocessableEntity, "field required: question")
		return
	}

	answer, err := h.engine.Answer(r.Context(), *payload.Question)
	if err != nil {
		if errors.Is(err, ragService.ErrEmptyQuestion) {
			respondDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.Printf("[rag] answer failed: %v", err)
		respondDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
