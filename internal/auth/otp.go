package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/identity"
	"github.com/gatherly/server/internal/model"
	"github.com/gatherly/server/internal/repo"
)

const (
	otpExpiry            = 5 * time.Minute
	maxAttempts          = 5
	minAttemptDelay      = 2 * time.Second
	requestWindow        = 10 * time.Minute
	maxRequestsPerWindow = 3

	// DevCode is the fixed OTP accepted when the service runs in dev mode.
	DevCode = "123456"
)

// ChallengeService issues and validates OTP challenges. Only a salted hash of
// each code is stored; the plaintext goes to the notifier once and is dropped.
type ChallengeService struct {
	otps     repo.OtpRepo
	notifier Notifier
	salt     string
	devMode  bool
	now      func() time.Time
}

// NewChallengeService creates an OTP challenge service. In dev mode every
// challenge is issued with the fixed DevCode.
func NewChallengeService(otps repo.OtpRepo, notifier Notifier, salt string, devMode bool) *ChallengeService {
	return &ChallengeService{
		otps:     otps,
		notifier: notifier,
		salt:     salt,
		devMode:  devMode,
		now:      time.Now,
	}
}

// Issue generates a fresh challenge for the identity and purpose, invalidating
// any outstanding one for the same pair, and hands the plaintext code to the
// notifier. Limited to 3 requests per identity per 10 minutes.
func (s *ChallengeService) Issue(ctx context.Context, id identity.Identity, purpose model.Purpose, ip, userAgent string) error {
	if !purpose.Valid() {
		return fmt.Errorf("invalid purpose %q", purpose)
	}

	since := s.now().Add(-requestWindow)
	count, err := s.otps.CountRecentRequests(ctx, id.Ref, since)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if count >= maxRequestsPerWindow {
		return ErrRateLimited
	}

	code := DevCode
	if !s.devMode {
		code, err = generateCode()
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
	}

	expiresAt := s.now().Add(otpExpiry)
	var requestIP, ua *string
	if ip != "" {
		requestIP = &ip
	}
	if userAgent != "" {
		ua = &userAgent
	}

	hashHex := hashCodeHex(id.Ref, code, s.salt)
	if _, err := s.otps.CreateOrReplaceChallenge(ctx, id.Ref, purpose, hashHex, expiresAt, requestIP, ua); err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}

	// Fire-and-forget: delivery failure is the notifier's problem, not ours.
	s.notifier.SendCode(ctx, id.Contact, code, purpose)
	return nil
}

// Verify checks a submitted code against the outstanding challenge for the
// (identity, purpose) pair. Each failed comparison counts against the attempt
// cap; a successful verification consumes the challenge so it can never be
// redeemed twice.
func (s *ChallengeService) Verify(ctx context.Context, identityRef uuid.UUID, purpose model.Purpose, submitted string) error {
	ch, err := s.otps.GetOutstanding(ctx, identityRef, purpose)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load challenge: %w", err)
	}

	now := s.now()
	if now.After(ch.ExpiresAt) {
		return ErrExpired
	}
	if ch.LastAttemptAt != nil && now.Sub(*ch.LastAttemptAt) < minAttemptDelay {
		return ErrRateLimited
	}

	// Attempt accounting happens before the comparison so concurrent
	// verifications cannot both slip under the cap.
	newCount, err := s.otps.IncrementAttempt(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if newCount > maxAttempts {
		_, _ = s.otps.MarkConsumed(ctx, ch.ID)
		return ErrAttemptsExhausted
	}

	provided := hashCodeBytes(identityRef, submitted, s.salt)
	if !constantTimeCompare(provided, ch.CodeHash) {
		if newCount >= maxAttempts {
			_, _ = s.otps.MarkConsumed(ctx, ch.ID)
			return ErrAttemptsExhausted
		}
		return ErrInvalidCode
	}

	consumed, err := s.otps.MarkConsumed(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if !consumed {
		// Someone else consumed it between our read and the CAS.
		return ErrNotFound
	}
	return nil
}

// generateCode returns a uniformly random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// hashCodeHex returns SHA-256(identity:code:salt) as hex for storage.
func hashCodeHex(identityRef uuid.UUID, code, salt string) string {
	return hex.EncodeToString(hashCodeBytes(identityRef, code, salt))
}

func hashCodeBytes(identityRef uuid.UUID, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", identityRef, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result int
	for i := 0; i < len(a); i++ {
		result |= int(a[i]) ^ int(b[i])
	}
	return result == 0
}
