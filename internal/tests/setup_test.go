// Package tests exercises the HTTP surface end to end against in-memory
// storage: real router, real middleware, real services.
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatherly/server/internal/auth"
	apphttp "github.com/gatherly/server/internal/http"
	"github.com/gatherly/server/internal/http/handlers"
	"github.com/gatherly/server/internal/identity"
	"github.com/gatherly/server/internal/match"
	"github.com/gatherly/server/internal/model"
	"github.com/gatherly/server/internal/repo"
	"github.com/gatherly/server/internal/social"
)

// recordingNotifier captures the plaintext code per contact so tests can
// complete the OTP exchange.
type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: make(map[string]string)}
}

func (n *recordingNotifier) SendCode(_ context.Context, contact, code string, _ model.Purpose) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[contact] = code
}

func (n *recordingNotifier) codeFor(contact string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[contact]
}

// testApp wires the full application against in-memory repos.
type testApp struct {
	router   http.Handler
	notifier *recordingNotifier
	tokens   *auth.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	notifier := newRecordingNotifier()
	directory := identity.NewMemoryDirectory()

	jwtSvc := auth.NewJWTService("e2e-test-secret-0123456789abcdef", 15*time.Minute)
	tokens := auth.NewService(jwtSvc, repo.NewMemoryRefreshRepo(), 30*24*time.Hour)
	challenges := auth.NewChallengeService(repo.NewMemoryOtpRepo(), notifier, "e2e-test-salt", false)
	friends := social.NewService(repo.NewMemoryFriendRepo())
	engine := match.NewEngine(repo.NewMemoryInterestRepo(), repo.NewMemoryMatchRepo(), match.StubProvisioner{}, 2, time.Second)

	router := apphttp.NewRouter(
		handlers.NewAuthHandler(challenges, tokens, directory),
		handlers.NewFriendsHandler(friends),
		handlers.NewEventsHandler(engine),
		tokens,
	)
	return &testApp{router: router, notifier: notifier, tokens: tokens}
}

// do sends a JSON request through the router, with an optional bearer token,
// and decodes the JSON response body.
func (a *testApp) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded),
			"response body should be JSON: %s", rr.Body.String())
	}
	return rr.Code, decoded
}

// session is one signed-up user.
type session struct {
	identityRef  string
	accessToken  string
	refreshToken string
}

// signup runs the register OTP exchange for the contact and returns the
// resulting tokens.
func (a *testApp) signup(t *testing.T, contact string) session {
	t.Helper()

	code, body := a.do(t, http.MethodPost, "/auth/request_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "otp_sent", body["message"])

	otp := a.notifier.codeFor(contact)
	require.NotEmpty(t, otp, "the notifier should have received a code")

	code, body = a.do(t, http.MethodPost, "/auth/verify_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
		"code":    otp,
	})
	require.Equal(t, http.StatusOK, code)

	s := session{
		identityRef:  asString(t, body, "identity_ref"),
		accessToken:  asString(t, body, "access_token"),
		refreshToken: asString(t, body, "refresh_token"),
	}
	require.NotEmpty(t, s.identityRef)
	require.NotEmpty(t, s.accessToken)
	require.NotEmpty(t, s.refreshToken)
	return s
}

func asString(t *testing.T, body map[string]any, key string) string {
	t.Helper()
	v, ok := body[key].(string)
	require.True(t, ok, "expected string field %q in %v", key, body)
	return v
}
