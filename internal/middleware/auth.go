package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity_ref"

// AuthMiddleware verifies the Bearer access token and attaches the subject to
// the request context. Verification is stateless; no store lookup per
// request. Every failure produces the same 401 body so callers cannot probe
// whether a token is expired or malformed; the distinction stays in the logs.
func AuthMiddleware(tokens *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
				respondUnauthorized(w)
				return
			}

			identityRef, err := tokens.VerifyAccess(strings.TrimSpace(parts[1]))
			if err != nil {
				log.Printf("access token rejected: %v", err)
				respondUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identityRef)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityRef extracts the authenticated identity from the context.
func GetIdentityRef(ctx context.Context) (uuid.UUID, bool) {
	ref, ok := ctx.Value(identityKey).(uuid.UUID)
	return ref, ok
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
