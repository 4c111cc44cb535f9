package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/identity"
	"github.com/gatherly/server/internal/middleware"
	"github.com/gatherly/server/internal/model"
	"github.com/gatherly/server/internal/repo"
)

// AuthHandler handles the OTP exchange and token lifecycle endpoints.
type AuthHandler struct {
	challenges      *auth.ChallengeService
	tokens          *auth.Service
	directory       identity.Directory
	ipLimiter       *middleware.RateLimiter
	verifyIPLimiter *middleware.RateLimiter
}

// NewAuthHandler creates the auth handler. Per-IP sliding-window limits guard
// the OTP endpoints; the per-identity limit lives in the challenge service.
func NewAuthHandler(challenges *auth.ChallengeService, tokens *auth.Service, directory identity.Directory) *AuthHandler {
	return &AuthHandler{
		challenges:      challenges,
		tokens:          tokens,
		directory:       directory,
		ipLimiter:       middleware.NewRateLimiter(10*time.Minute, 10),
		verifyIPLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// requestOTPRequest is the body for POST /auth/request_otp.
type requestOTPRequest struct {
	Contact string `json:"contact"`
	Purpose string `json:"purpose"`
}

// verifyOTPRequest is the body for POST /auth/verify_otp.
type verifyOTPRequest struct {
	Contact    string `json:"contact"`
	Purpose    string `json:"purpose"`
	Code       string `json:"code"`
	DeviceName string `json:"device_name"`
}

// tokenPairResponse is the token payload shared by verify and refresh.
type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

func tokenResponse(pair auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		TokenType:        "bearer",
	}
}

// HandleRequestOTP handles POST /auth/request_otp.
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	req.Contact = strings.TrimSpace(req.Contact)
	purpose := model.Purpose(strings.TrimSpace(req.Purpose))
	if purpose == "" {
		purpose = model.PurposeLogin
	}
	if req.Contact == "" {
		respondWithError(w, http.StatusBadRequest, "contact is required")
		return
	}
	if !purpose.Valid() {
		respondWithError(w, http.StatusBadRequest, "purpose must be login or register")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var id identity.Identity
	var err error
	if purpose == model.PurposeRegister {
		id, err = h.directory.EnsureContact(r.Context(), req.Contact)
	} else {
		id, err = h.directory.ResolveContact(r.Context(), req.Contact)
	}
	if err != nil {
		// Same response whether the contact is unknown or the directory is
		// down, so the endpoint cannot be used to enumerate contacts.
		log.Printf("otp request for %s failed: %v", auth.MaskContact(req.Contact), err)
		respondJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
		return
	}

	if err := h.challenges.Issue(r.Context(), id, purpose, clientIP(r), r.UserAgent()); err != nil {
		log.Printf("otp issue for %s failed: %v", auth.MaskContact(req.Contact), err)
		if errors.Is(err, auth.ErrRateLimited) {
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to request OTP")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "otp_sent"})
}

// HandleVerifyOTP handles POST /auth/verify_otp: a correct code consumes the
// challenge and yields a fresh token pair.
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Contact = strings.TrimSpace(req.Contact)
	req.Code = strings.TrimSpace(req.Code)
	purpose := model.Purpose(strings.TrimSpace(req.Purpose))
	if purpose == "" {
		purpose = model.PurposeLogin
	}
	if req.Contact == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "contact and code are required")
		return
	}
	if !purpose.Valid() {
		respondWithError(w, http.StatusBadRequest, "purpose must be login or register")
		return
	}

	if !h.verifyIPLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	id, err := h.directory.ResolveContact(r.Context(), req.Contact)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	if err := h.challenges.Verify(r.Context(), id.Ref, purpose, req.Code); err != nil {
		log.Printf("otp verify for %s failed: %v", auth.MaskContact(req.Contact), err)
		switch {
		case errors.Is(err, auth.ErrAttemptsExhausted):
			respondWithError(w, http.StatusUnauthorized, "too many attempts")
		case errors.Is(err, auth.ErrRateLimited):
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		default:
			respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
		}
		return
	}

	var deviceRef *string
	if name := strings.TrimSpace(req.DeviceName); name != "" {
		deviceRef = &name
	}
	pair, err := h.tokens.IssueTokenPair(r.Context(), id.Ref, deviceRef)
	if err != nil {
		log.Printf("token issue for %s failed: %v", auth.MaskContact(req.Contact), err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	respondJSON(w, http.StatusOK, struct {
		tokenPairResponse
		IdentityRef string `json:"identity_ref"`
	}{tokenResponse(pair), id.Ref.String()})
}

// refreshRequest is the body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh: rotation on use. Replaying a
// rotated token revokes the whole lineage.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	_, pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrSessionCompromised) {
			respondWithError(w, http.StatusUnauthorized, "session_compromised")
			return
		}
		respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse(pair))
}

// logoutRequest is the body for POST /auth/logout.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleLogout handles POST /auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	if err := h.tokens.Logout(r.Context(), req.RefreshToken); err != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe handles GET /me (protected).
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ref, ok := middleware.GetIdentityRef(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := h.directory.Lookup(r.Context(), ref)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"identity_ref": id.Ref.String(),
		"contact":      id.Contact,
	})
}

// clientIP extracts the caller's IP for audit fields on OTP challenges.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	return r.RemoteAddr
}
