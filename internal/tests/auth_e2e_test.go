package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndMe(t *testing.T) {
	app := newTestApp(t)
	s := app.signup(t, "+4915112345678")

	code, body := app.do(t, http.MethodGet, "/me", s.accessToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, s.identityRef, body["identity_ref"])
	assert.Equal(t, "+4915112345678", body["contact"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	code, body := app.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["error"])

	code, _ = app.do(t, http.MethodGet, "/friends/", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestVerifyOTP_wrongCodeThenReissue(t *testing.T) {
	app := newTestApp(t)
	contact := "+4915112345678"

	code, _ := app.do(t, http.MethodPost, "/auth/request_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := app.do(t, http.MethodPost, "/auth/verify_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
		"code":    "000000",
	})
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid or expired code", body["error"])

	// Requesting again replaces the outstanding challenge; the fresh code
	// carries a clean attempt history.
	code, _ = app.do(t, http.MethodPost, "/auth/request_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
	})
	require.Equal(t, http.StatusOK, code)
	second := app.notifier.codeFor(contact)
	require.NotEmpty(t, second)

	code, body = app.do(t, http.MethodPost, "/auth/verify_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
		"code":    second,
	})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["access_token"])
}

func TestVerifyOTP_codeIsSingleUse(t *testing.T) {
	app := newTestApp(t)
	contact := "+4915112345678"
	app.signup(t, contact)

	// The signup consumed the challenge; replaying the code fails.
	code, body := app.do(t, http.MethodPost, "/auth/verify_otp", "", map[string]string{
		"contact": contact,
		"purpose": "register",
		"code":    app.notifier.codeFor(contact),
	})
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid or expired code", body["error"])
}

func TestRequestOTP_unknownContactNotRevealed(t *testing.T) {
	app := newTestApp(t)

	// Login for a contact that never registered: same response shape, no
	// code dispatched.
	code, body := app.do(t, http.MethodPost, "/auth/request_otp", "", map[string]string{
		"contact": "+4900000000000",
		"purpose": "login",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "otp_sent", body["message"])
	assert.Empty(t, app.notifier.codeFor("+4900000000000"))
}

func TestLoginAfterRegister(t *testing.T) {
	app := newTestApp(t)
	contact := "+4915112345678"
	registered := app.signup(t, contact)

	code, _ := app.do(t, http.MethodPost, "/auth/request_otp", "", map[string]string{
		"contact": contact,
		"purpose": "login",
	})
	require.Equal(t, http.StatusOK, code)

	code, body := app.do(t, http.MethodPost, "/auth/verify_otp", "", map[string]string{
		"contact": contact,
		"purpose": "login",
		"code":    app.notifier.codeFor(contact),
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, registered.identityRef, body["identity_ref"],
		"login resolves to the same identity")
}

func TestRefresh_rotationAndReplay(t *testing.T) {
	app := newTestApp(t)
	s := app.signup(t, "+4915112345678")

	code, body := app.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": s.refreshToken,
	})
	require.Equal(t, http.StatusOK, code)
	rotated := asString(t, body, "refresh_token")
	require.NotEqual(t, s.refreshToken, rotated)

	// Replaying the rotated-out token flags the session as compromised.
	code, body = app.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": s.refreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session_compromised", body["error"])

	// The lineage revocation also killed the rotated-in token.
	code, body = app.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": rotated,
	})
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session_compromised", body["error"])
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	s := app.signup(t, "+4915112345678")

	code, _ := app.do(t, http.MethodPost, "/auth/logout", "", map[string]string{
		"refresh_token": s.refreshToken,
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = app.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": s.refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	// Access tokens are stateless: still valid until expiry.
	code, _ = app.do(t, http.MethodGet, "/me", s.accessToken, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	code, body := app.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
