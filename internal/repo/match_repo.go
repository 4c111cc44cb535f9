package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gatherly/server/internal/model"
)

// MatchRepo persists match records, one per event.
type MatchRepo interface {
	// Create inserts the record if no match exists for the event yet; reports
	// whether this call created it (exactly one concurrent creator wins).
	Create(ctx context.Context, rec model.MatchRecord) (bool, error)
	// Get returns the match for the event; ErrNotFound if none.
	Get(ctx context.Context, eventRef string) (model.MatchRecord, error)
	// SetChannelRef records the provisioned channel; reports false if a
	// channel was already set.
	SetChannelRef(ctx context.Context, eventRef, channelRef string) (bool, error)
	// RecordAttempt bumps the provisioning attempt counter.
	RecordAttempt(ctx context.Context, eventRef string) error
	// ListPendingChannel returns matches still awaiting a channel, oldest
	// first, up to limit.
	ListPendingChannel(ctx context.Context, limit int) ([]model.MatchRecord, error)
}

type matchRepo struct {
	db *sql.DB
}

// NewMatchRepo creates a PostgreSQL-backed MatchRepo.
func NewMatchRepo(db *sql.DB) MatchRepo {
	return &matchRepo{db: db}
}

func (r *matchRepo) Create(ctx context.Context, rec model.MatchRecord) (bool, error) {
	members := make([]string, len(rec.Members))
	for i, m := range rec.Members {
		members[i] = m.String()
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO match_records (event_ref, member_refs, formed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_ref) DO NOTHING
	`, rec.EventRef, pq.Array(members), rec.FormedAt)
	if err != nil {
		return false, fmt.Errorf("insert match: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *matchRepo) Get(ctx context.Context, eventRef string) (model.MatchRecord, error) {
	rec, err := scanMatch(r.db.QueryRowContext(ctx, `
		SELECT event_ref, member_refs, formed_at, channel_ref, provision_attempts, last_attempt_at
		FROM match_records
		WHERE event_ref = $1
	`, eventRef))
	if err != nil {
		if err == sql.ErrNoRows {
			return model.MatchRecord{}, ErrNotFound
		}
		return model.MatchRecord{}, fmt.Errorf("query match: %w", err)
	}
	return rec, nil
}

func (r *matchRepo) SetChannelRef(ctx context.Context, eventRef, channelRef string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE match_records SET channel_ref = $2
		WHERE event_ref = $1 AND channel_ref IS NULL
	`, eventRef, channelRef)
	if err != nil {
		return false, fmt.Errorf("set channel ref: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *matchRepo) RecordAttempt(ctx context.Context, eventRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE match_records
		SET provision_attempts = provision_attempts + 1, last_attempt_at = now()
		WHERE event_ref = $1
	`, eventRef)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (r *matchRepo) ListPendingChannel(ctx context.Context, limit int) ([]model.MatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_ref, member_refs, formed_at, channel_ref, provision_attempts, last_attempt_at
		FROM match_records
		WHERE channel_ref IS NULL
		ORDER BY formed_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending matches: %w", err)
	}
	defer rows.Close()

	var recs []model.MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (model.MatchRecord, error) {
	var rec model.MatchRecord
	var members pq.StringArray
	if err := row.Scan(&rec.EventRef, &members, &rec.FormedAt, &rec.ChannelRef, &rec.ProvisionAttempts, &rec.LastAttemptAt); err != nil {
		return model.MatchRecord{}, err
	}
	rec.Members = make([]uuid.UUID, 0, len(members))
	for _, s := range members {
		u, err := uuid.Parse(s)
		if err != nil {
			return model.MatchRecord{}, fmt.Errorf("parse member ref: %w", err)
		}
		rec.Members = append(rec.Members, u)
	}
	return rec, nil
}
