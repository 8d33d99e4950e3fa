package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rag-chat/backend/internal/service/auth"
	"github.com/zhouzirui/rag-chat/backend/pkg/utils"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type queryTokenKey struct{}

// StripQueryToken removes the "token" query parameter so request logging
// never records it, and keeps its value for Auth. Install it before the
// logger.
func StripQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if !query.Has("token") {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(query.Get("token"))
		query.Del("token")

		u := *r.URL
		u.RawQuery = query.Encode()
		stripped := r.WithContext(context.WithValue(r.Context(), queryTokenKey{}, token))
		stripped.URL = &u
		stripped.RequestURI = u.RequestURI()

		next.ServeHTTP(w, stripped)
	})
}

// Auth rejects requests without a valid token and injects the caller identity
// into the request context. Browsers cannot set headers on WebSocket
// upgrades, so those may pass the token as a "token" query parameter.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "Authorization header missing")
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return ""
	}

	if !websocket.IsWebSocketUpgrade(r) {
		return ""
	}
	if token, ok := r.Context().Value(queryTokenKey{}).(string); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
