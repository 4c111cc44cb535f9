package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
)

// RefreshRepo persists refresh-token sessions.
type RefreshRepo interface {
	Create(ctx context.Context, identityRef uuid.UUID, deviceRef *string, tokenHash string, expiresAt time.Time) (uuid.UUID, error)
	// FindByTokenHash returns the session regardless of revocation or expiry;
	// callers inspect RevokedAt/ExpiresAt. ErrNotFound if no row matches.
	FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	// RevokeAndReplace atomically revokes the session and records its
	// successor. Reports false if the session was already revoked, so
	// concurrent rotations have exactly one winner.
	RevokeAndReplace(ctx context.Context, sessionID, replacedBy uuid.UUID) (bool, error)
	// Revoke revokes a single session; reports false if already revoked.
	Revoke(ctx context.Context, sessionID uuid.UUID) (bool, error)
	// RevokeAll revokes every active session for the identity; with a non-nil
	// deviceRef only that device's lineage is revoked.
	RevokeAll(ctx context.Context, identityRef uuid.UUID, deviceRef *string) error
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a PostgreSQL-backed RefreshRepo.
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

func (r *refreshRepo) Create(ctx context.Context, identityRef uuid.UUID, deviceRef *string, tokenHash string, expiresAt time.Time) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO refresh_sessions (identity_ref, device_ref, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, identityRef, deviceRef, tokenHash, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert refresh session: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse session ID: %w", err)
	}
	return id, nil
}

func (r *refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var s model.RefreshSession
	var idStr, identityStr string
	var replacedByStr sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity_ref, device_ref, token_hash, created_at, expires_at, revoked_at, replaced_by
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&idStr,
		&identityStr,
		&s.DeviceRef,
		&s.TokenHash,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&replacedByStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.RefreshSession{}, ErrNotFound
		}
		return model.RefreshSession{}, fmt.Errorf("find refresh session: %w", err)
	}
	if s.ID, err = uuid.Parse(idStr); err != nil {
		return model.RefreshSession{}, fmt.Errorf("parse session ID: %w", err)
	}
	if s.IdentityRef, err = uuid.Parse(identityStr); err != nil {
		return model.RefreshSession{}, fmt.Errorf("parse identity ref: %w", err)
	}
	if replacedByStr.Valid && replacedByStr.String != "" {
		u, err := uuid.Parse(replacedByStr.String)
		if err != nil {
			return model.RefreshSession{}, fmt.Errorf("parse replaced_by: %w", err)
		}
		s.ReplacedBy = &u
	}
	return s, nil
}

func (r *refreshRepo) RevokeAndReplace(ctx context.Context, sessionID, replacedBy uuid.UUID) (bool, error) {
	// Check-and-set on revoked_at: the WHERE clause is what makes concurrent
	// rotations of the same token resolve to a single winner.
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = now(), replaced_by = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, sessionID, replacedBy)
	if err != nil {
		return false, fmt.Errorf("revoke and replace: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *refreshRepo) Revoke(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, sessionID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *refreshRepo) RevokeAll(ctx context.Context, identityRef uuid.UUID, deviceRef *string) error {
	var err error
	if deviceRef == nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE refresh_sessions SET revoked_at = now()
			WHERE identity_ref = $1 AND revoked_at IS NULL
		`, identityRef)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE refresh_sessions SET revoked_at = now()
			WHERE identity_ref = $1 AND device_ref = $2 AND revoked_at IS NULL
		`, identityRef, *deviceRef)
	}
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}
