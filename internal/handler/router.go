package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/rag-chat/backend/internal/handler/ask"
	"github.com/zhouzirui/rag-chat/backend/internal/handler/auth"
	"github.com/zhouzirui/rag-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/rag-chat/backend/internal/handler/rag"
	middlewarePkg "github.com/zhouzirui/rag-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/rag-chat/backend/internal/service/chat"
)

// TokenService issues and verifies access tokens.
type TokenService interface {
	auth.TokenIssuer
	middlewarePkg.TokenVerifier
}

// Dependencies are the services behind the public API.
type Dependencies struct {
	Answerer       ask.Answerer
	Accounts       auth.Accounts
	Tokens         TokenService
	Chats          *chatService.Manager
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := newBaseRouter(deps.AllowedOrigins)
	requireAuth := middlewarePkg.Auth(deps.Tokens)

	r.Get("/healthz", handleHealth)

	r.Route("/api", func(api chi.Router) {
		ask.New(deps.Answerer).RegisterRoutes(api)
		auth.New(deps.Accounts, deps.Tokens).RegisterRoutes(api, requireAuth)

		api.Group(func(protected chi.Router) {
			protected.Use(requireAuth)
			chat.New(deps.Chats, originChecker(deps.AllowedOrigins)).RegisterRoutes(protected)
		})
	})

	return r
}

// NewBackendRouter serves the answer backend consumed by the answer proxy.
func NewBackendRouter(engine rag.Answerer, allowedOrigins []string) http.Handler {
	r := newBaseRouter(allowedOrigins)
	r.Get("/healthz", handleHealth)
	rag.New(engine).RegisterRoutes(r)
	return r
}

func newBaseRouter(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.StripQueryToken)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// originChecker accepts WebSocket upgrades from non-browser clients and from
// the configured front-end origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || strings.TrimRight(candidate, "/") == origin {
				return true
			}
		}
		return false
	}
}
