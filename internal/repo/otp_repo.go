package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
)

// OtpRepo persists OTP challenges.
type OtpRepo interface {
	// CreateOrReplaceChallenge consumes any outstanding challenge for the
	// (identity, purpose) pair and inserts a new one, atomically.
	CreateOrReplaceChallenge(ctx context.Context, identityRef uuid.UUID, purpose model.Purpose, codeHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error)
	// GetOutstanding returns the unconsumed challenge for the pair regardless
	// of expiry or attempt count; ErrNotFound if none exists.
	GetOutstanding(ctx context.Context, identityRef uuid.UUID, purpose model.Purpose) (model.OtpChallenge, error)
	// IncrementAttempt bumps attempt_count and returns the new value.
	IncrementAttempt(ctx context.Context, challengeID uuid.UUID) (int, error)
	// MarkConsumed consumes the challenge; reports false if it was already
	// consumed (exactly one caller wins).
	MarkConsumed(ctx context.Context, challengeID uuid.UUID) (bool, error)
	// CountRecentRequests counts challenges created for the identity since the
	// given time, for request rate limiting.
	CountRecentRequests(ctx context.Context, identityRef uuid.UUID, since time.Time) (int, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a PostgreSQL-backed OtpRepo.
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

func (r *otpRepo) CreateOrReplaceChallenge(ctx context.Context, identityRef uuid.UUID, purpose model.Purpose, codeHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Advisory lock serializes issuance per (identity, purpose) so the
	// partial unique index never trips on concurrent inserts. Released on
	// COMMIT/ROLLBACK.
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`,
		identityRef.String()+":"+string(purpose))
	if err != nil {
		return uuid.Nil, fmt.Errorf("advisory lock: %w", err)
	}

	// Issuing a new challenge invalidates all prior outstanding ones for the
	// pair, including expired ones.
	_, err = tx.ExecContext(ctx, `
		UPDATE otp_challenges
		SET consumed_at = now()
		WHERE identity_ref = $1 AND purpose = $2 AND consumed_at IS NULL
	`, identityRef, purpose)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume prior challenges: %w", err)
	}

	var idStr string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (identity_ref, purpose, code_hash, expires_at, request_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, identityRef, purpose, codeHashHex, expiresAt, requestIP, userAgent).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse challenge ID: %w", err)
	}
	return id, nil
}

func (r *otpRepo) GetOutstanding(ctx context.Context, identityRef uuid.UUID, purpose model.Purpose) (model.OtpChallenge, error) {
	query := `
		SELECT id, identity_ref, purpose, code_hash, expires_at, consumed_at,
		       created_at, attempt_count, last_attempt_at, request_ip, user_agent
		FROM otp_challenges
		WHERE identity_ref = $1 AND purpose = $2 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var ch model.OtpChallenge
	var idStr, identityStr, hashHex string
	err := r.db.QueryRowContext(ctx, query, identityRef, purpose).Scan(
		&idStr,
		&identityStr,
		&ch.Purpose,
		&hashHex,
		&ch.ExpiresAt,
		&ch.ConsumedAt,
		&ch.CreatedAt,
		&ch.AttemptCount,
		&ch.LastAttemptAt,
		&ch.RequestIP,
		&ch.UserAgent,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.OtpChallenge{}, ErrNotFound
		}
		return model.OtpChallenge{}, fmt.Errorf("query challenge: %w", err)
	}

	if ch.ID, err = uuid.Parse(idStr); err != nil {
		return model.OtpChallenge{}, fmt.Errorf("parse challenge ID: %w", err)
	}
	if ch.IdentityRef, err = uuid.Parse(identityStr); err != nil {
		return model.OtpChallenge{}, fmt.Errorf("parse identity ref: %w", err)
	}
	if ch.CodeHash, err = hex.DecodeString(hashHex); err != nil {
		return model.OtpChallenge{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return ch, nil
}

func (r *otpRepo) IncrementAttempt(ctx context.Context, challengeID uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE otp_challenges
		SET attempt_count = attempt_count + 1, last_attempt_at = now()
		WHERE id = $1
		RETURNING attempt_count
	`, challengeID).Scan(&newCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, nil
}

func (r *otpRepo) MarkConsumed(ctx context.Context, challengeID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = now()
		WHERE id = $1 AND consumed_at IS NULL
	`, challengeID)
	if err != nil {
		return false, fmt.Errorf("mark consumed: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *otpRepo) CountRecentRequests(ctx context.Context, identityRef uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otp_challenges
		WHERE identity_ref = $1 AND created_at >= $2
	`, identityRef, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent requests: %w", err)
	}
	return count, nil
}
