package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/repo"
)

func newTokenService(accessTTL time.Duration) *auth.Service {
	jwtSvc := auth.NewJWTService("middleware-test-secret-0123456789", accessTTL)
	return auth.NewService(jwtSvc, repo.NewMemoryRefreshRepo(), time.Hour)
}

func protectedEcho(t *testing.T, want uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetIdentityRef(r.Context())
		require.True(t, ok, "identity should be on the context")
		assert.Equal(t, want, got)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_validToken(t *testing.T) {
	tokens := newTokenService(15 * time.Minute)
	identityRef := uuid.New()

	pair, err := tokens.IssueTokenPair(context.Background(), identityRef, nil)
	require.NoError(t, err)

	handler := AuthMiddleware(tokens)(protectedEcho(t, identityRef))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthMiddleware_rejections(t *testing.T) {
	tokens := newTokenService(-time.Minute)
	pair, err := tokens.IssueTokenPair(context.Background(), uuid.New(), nil)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run")
	})
	handler := AuthMiddleware(tokens)(next)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc123",
		"empty token":    "Bearer ",
		"garbage token":  "Bearer not-a-jwt",
		"expired token":  "Bearer " + pair.AccessToken,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rr.Body.String(),
				"all failures share one body")
		})
	}
}

func TestGetIdentityRef_absent(t *testing.T) {
	_, ok := GetIdentityRef(context.Background())
	assert.False(t, ok)
}
