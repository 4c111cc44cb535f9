package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/repo"
)

// TokenPair is an access token plus the refresh token that can later renew it.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service issues, verifies and rotates token pairs on top of the session
// store. Access tokens are stateless; refresh tokens are opaque and tracked.
type Service struct {
	jwt        *JWTService
	sessions   repo.RefreshRepo
	refreshTTL time.Duration
}

// NewService creates the token service.
func NewService(jwt *JWTService, sessions repo.RefreshRepo, refreshTTL time.Duration) *Service {
	return &Service{
		jwt:        jwt,
		sessions:   sessions,
		refreshTTL: refreshTTL,
	}
}

// IssueTokenPair mints an access token and a refresh token for the identity
// and persists the refresh session. Called only after OTP verification or a
// successful refresh.
func (s *Service) IssueTokenPair(ctx context.Context, identityRef uuid.UUID, deviceRef *string) (TokenPair, error) {
	access, accessExp, err := s.jwt.SignAccessToken(identityRef)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, hashHex, err := GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	refreshExp := time.Now().Add(s.refreshTTL)
	if _, err := s.sessions.Create(ctx, identityRef, deviceRef, hashHex, refreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh session: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess verifies an access token and returns its subject. No store
// lookup: per-request authentication stays cheap.
func (s *Service) VerifyAccess(token string) (uuid.UUID, error) {
	return s.jwt.VerifyAccessToken(token)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. Presenting an already-revoked token is a compromise signal
// and revokes the whole lineage for that identity/device.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (uuid.UUID, TokenPair, error) {
	hash := HashRefreshToken(refreshToken)
	sess, err := s.sessions.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return uuid.Nil, TokenPair{}, ErrNotFound
		}
		return uuid.Nil, TokenPair{}, fmt.Errorf("find refresh session: %w", err)
	}

	if sess.RevokedAt != nil {
		return uuid.Nil, TokenPair{}, s.compromised(ctx, sess.IdentityRef, sess.DeviceRef)
	}
	if time.Now().After(sess.ExpiresAt) {
		return uuid.Nil, TokenPair{}, ErrExpired
	}

	pair, err := s.IssueTokenPair(ctx, sess.IdentityRef, sess.DeviceRef)
	if err != nil {
		return uuid.Nil, TokenPair{}, err
	}
	successor, err := s.sessions.FindByTokenHash(ctx, HashRefreshToken(pair.RefreshToken))
	if err != nil {
		return uuid.Nil, TokenPair{}, fmt.Errorf("load successor session: %w", err)
	}

	won, err := s.sessions.RevokeAndReplace(ctx, sess.ID, successor.ID)
	if err != nil {
		return uuid.Nil, TokenPair{}, fmt.Errorf("rotate refresh session: %w", err)
	}
	if !won {
		// A concurrent refresh beat us to the rotation; the token we hold was
		// just revoked, which is indistinguishable from replay. Drop the pair
		// we minted and treat it as compromise.
		_, _ = s.sessions.Revoke(ctx, successor.ID)
		return uuid.Nil, TokenPair{}, s.compromised(ctx, sess.IdentityRef, sess.DeviceRef)
	}

	return sess.IdentityRef, pair, nil
}

// RevokeSession revokes all refresh sessions for the identity, or only those
// of one device when deviceRef is non-nil. Used for logout-everywhere and
// security events.
func (s *Service) RevokeSession(ctx context.Context, identityRef uuid.UUID, deviceRef *string) error {
	if err := s.sessions.RevokeAll(ctx, identityRef, deviceRef); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// Logout revokes the single session behind the presented refresh token.
// Fails with ErrRevoked if it was already revoked.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	sess, err := s.sessions.FindByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("find refresh session: %w", err)
	}
	revoked, err := s.sessions.Revoke(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if !revoked {
		return ErrRevoked
	}
	return nil
}

func (s *Service) compromised(ctx context.Context, identityRef uuid.UUID, deviceRef *string) error {
	log.Printf("refresh token reuse detected for identity %s; revoking lineage", identityRef)
	if err := s.sessions.RevokeAll(ctx, identityRef, deviceRef); err != nil {
		return fmt.Errorf("revoke lineage: %w", err)
	}
	return ErrSessionCompromised
}
