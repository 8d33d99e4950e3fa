package auth

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	model "github.com/zhouzirui/rag-chat/backend/internal/model/user"
	authService "github.com/zhouzirui/rag-chat/backend/internal/service/auth"
	userService "github.com/zhouzirui/rag-chat/backend/internal/service/user"
	"github.com/zhouzirui/rag-chat/backend/pkg/utils"
)

// Accounts 账号注册与登录
type Accounts interface {
	Signup(ctx context.Context, name, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
}

// TokenIssuer 签发访问令牌
type TokenIssuer interface {
	Issue(id authService.Identity) (string, error)
}

// Handler 认证相关的HTTP处理器
type Handler struct {
	accounts Accounts
	issuer   TokenIssuer
}

// New 创建认证处理器
func New(accounts Accounts, issuer TokenIssuer) *Handler {
	return &Handler{accounts: accounts, issuer: issuer}
}

// RegisterRoutes 注册认证路由，/auth/me 需要经过 requireAuth
func (h *Handler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/signup", h.handleSignup)
		ar.Post("/login", h.handleLogin)
		ar.With(requireAuth).Get("/me", h.handleMe)
	})
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup 注册新用户
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Please provide name, email and password")
		return
	}

	u, err := h.accounts.Signup(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		var validation *userService.ValidationError
		switch {
		case errors.As(err, &validation):
			utils.RespondError(w, http.StatusBadRequest, validation.Message)
		case errors.Is(err, userService.ErrEmailTaken):
			utils.RespondError(w, http.StatusBadRequest, "User already exists with this email")
		default:
			log.Printf("[auth] signup failed: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    u.Public(),
	})
}

// handleLogin 校验凭证并签发令牌
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.accounts.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, userService.ErrInvalidCredentials) {
			utils.RespondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("[auth] login failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := h.issuer.Issue(authService.Identity{UserID: u.ID, Name: u.Name, Email: u.Email})
	if err != nil {
		log.Printf("[auth] issue token failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  u.Public(),
	})
}

// handleMe 返回当前登录身份
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := authService.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Authorization header missing")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"user": identity})
}
