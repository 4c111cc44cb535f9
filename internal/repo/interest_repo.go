package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InterestRepo persists per-user, per-event interest signals.
type InterestRepo interface {
	// Add records interest idempotently; reports whether a new row was
	// created (false means the interest already existed).
	Add(ctx context.Context, identityRef uuid.UUID, eventRef string) (bool, error)
	// ListForEvent returns the distinct identities interested in the event.
	ListForEvent(ctx context.Context, eventRef string) ([]uuid.UUID, error)
	// ListEventsFor returns the events the identity has expressed interest in.
	ListEventsFor(ctx context.Context, identityRef uuid.UUID) ([]string, error)
}

type interestRepo struct {
	db *sql.DB
}

// NewInterestRepo creates a PostgreSQL-backed InterestRepo.
func NewInterestRepo(db *sql.DB) InterestRepo {
	return &interestRepo{db: db}
}

func (r *interestRepo) Add(ctx context.Context, identityRef uuid.UUID, eventRef string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO event_interests (identity_ref, event_ref)
		VALUES ($1, $2)
		ON CONFLICT (identity_ref, event_ref) DO NOTHING
	`, identityRef, eventRef)
	if err != nil {
		return false, fmt.Errorf("insert interest: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *interestRepo) ListForEvent(ctx context.Context, eventRef string) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identity_ref FROM event_interests
		WHERE event_ref = $1
		ORDER BY expressed_at
	`, eventRef)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	defer rows.Close()

	var refs []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan identity ref: %w", err)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse identity ref: %w", err)
		}
		refs = append(refs, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interests: %w", err)
	}
	return refs, nil
}

func (r *interestRepo) ListEventsFor(ctx context.Context, identityRef uuid.UUID) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_ref FROM event_interests
		WHERE identity_ref = $1
		ORDER BY expressed_at
	`, identityRef)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan event ref: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
