package auth

import (
	"context"
	"net/http"
	"strings"

	"pritecards/internal/app/apiresp"
)

type contextKey string

const creatorContextKey contextKey = "auth_creator"

const apiKeyHeader = "X-API-Key"

type Handler struct {
	keys *KeyRing
}

func NewHandler(keys *KeyRing) *Handler {
	return &Handler{keys: keys}
}

// RequireAPIKey rejects requests without a valid key and stores the
// resolved creator in the request context.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creator, err := h.keys.Verify(readAPIKey(r))
		if err != nil {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithCreator(r.Context(), creator)))
	})
}

func readAPIKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(apiKeyHeader)); v != "" {
		return v
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func CurrentCreator(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(creatorContextKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithCreator injects an authenticated creator into context.
// Useful for tests and internal handlers.
func ContextWithCreator(ctx context.Context, creator string) context.Context {
	return context.WithValue(ctx, creatorContextKey, creator)
}
