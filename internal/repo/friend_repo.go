package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gatherly/server/internal/model"
)

// FriendRepo persists the friendship graph as an adjacency relation indexed
// on both endpoints of each canonical pair.
type FriendRepo interface {
	// CreateEdge inserts a pending edge; ErrDuplicate if any edge already
	// exists for the pair.
	CreateEdge(ctx context.Context, edge model.FriendEdge) error
	// GetEdge returns the edge for the unordered pair; ErrNotFound if absent.
	GetEdge(ctx context.Context, a, b uuid.UUID) (model.FriendEdge, error)
	// UpdateStatus transitions the edge from one status to another; reports
	// false if the edge was not in the expected status.
	UpdateStatus(ctx context.Context, a, b uuid.UUID, from, to model.FriendStatus) (bool, error)
	// DeleteEdgeInStatus removes the edge if it is in the given status;
	// reports whether a row was removed.
	DeleteEdgeInStatus(ctx context.Context, a, b uuid.UUID, status model.FriendStatus) (bool, error)
	// ListFriendRefs returns identities with an accepted edge to ref.
	ListFriendRefs(ctx context.Context, ref uuid.UUID) ([]uuid.UUID, error)
	// ListPendingFor returns pending edges whose recipient is ref.
	ListPendingFor(ctx context.Context, ref uuid.UUID) ([]model.FriendEdge, error)
}

type friendRepo struct {
	db *sql.DB
}

// NewFriendRepo creates a PostgreSQL-backed FriendRepo.
func NewFriendRepo(db *sql.DB) FriendRepo {
	return &friendRepo{db: db}
}

func pairLockKey(lo, hi uuid.UUID) string {
	return lo.String() + ":" + hi.String()
}

func (r *friendRepo) CreateEdge(ctx context.Context, edge model.FriendEdge) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Serialize mutations per unordered pair.
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`,
		pairLockKey(edge.UserLo, edge.UserHi))
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO friend_edges (user_lo, user_hi, requested_by, status)
		VALUES ($1, $2, $3, $4)
	`, edge.UserLo, edge.UserHi, edge.RequestedBy, edge.Status)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *friendRepo) GetEdge(ctx context.Context, a, b uuid.UUID) (model.FriendEdge, error) {
	lo, hi := model.CanonicalPair(a, b)
	var e model.FriendEdge
	var loStr, hiStr, byStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_lo, user_hi, requested_by, status, created_at, accepted_at
		FROM friend_edges
		WHERE user_lo = $1 AND user_hi = $2
	`, lo, hi).Scan(&loStr, &hiStr, &byStr, &e.Status, &e.CreatedAt, &e.AcceptedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.FriendEdge{}, ErrNotFound
		}
		return model.FriendEdge{}, fmt.Errorf("query edge: %w", err)
	}
	if e.UserLo, err = uuid.Parse(loStr); err != nil {
		return model.FriendEdge{}, fmt.Errorf("parse user_lo: %w", err)
	}
	if e.UserHi, err = uuid.Parse(hiStr); err != nil {
		return model.FriendEdge{}, fmt.Errorf("parse user_hi: %w", err)
	}
	if e.RequestedBy, err = uuid.Parse(byStr); err != nil {
		return model.FriendEdge{}, fmt.Errorf("parse requested_by: %w", err)
	}
	return e, nil
}

func (r *friendRepo) UpdateStatus(ctx context.Context, a, b uuid.UUID, from, to model.FriendStatus) (bool, error) {
	lo, hi := model.CanonicalPair(a, b)
	// Compare-and-swap on status; a concurrent accept or decline makes the
	// WHERE clause miss and the caller sees false.
	result, err := r.db.ExecContext(ctx, `
		UPDATE friend_edges
		SET status = $4, accepted_at = CASE WHEN $4 = 'accepted' THEN now() ELSE accepted_at END
		WHERE user_lo = $1 AND user_hi = $2 AND status = $3
	`, lo, hi, from, to)
	if err != nil {
		return false, fmt.Errorf("update edge status: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *friendRepo) DeleteEdgeInStatus(ctx context.Context, a, b uuid.UUID, status model.FriendStatus) (bool, error) {
	lo, hi := model.CanonicalPair(a, b)
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM friend_edges
		WHERE user_lo = $1 AND user_hi = $2 AND status = $3
	`, lo, hi, status)
	if err != nil {
		return false, fmt.Errorf("delete edge: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *friendRepo) ListFriendRefs(ctx context.Context, ref uuid.UUID) ([]uuid.UUID, error) {
	// Both endpoints are indexed, so each side of the UNION is an index scan
	// on the caller's own adjacency, not a relation scan.
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_hi FROM friend_edges WHERE user_lo = $1 AND status = 'accepted'
		UNION ALL
		SELECT user_lo FROM friend_edges WHERE user_hi = $1 AND status = 'accepted'
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var refs []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan friend ref: %w", err)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse friend ref: %w", err)
		}
		refs = append(refs, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends: %w", err)
	}
	return refs, nil
}

func (r *friendRepo) ListPendingFor(ctx context.Context, ref uuid.UUID) ([]model.FriendEdge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_lo, user_hi, requested_by, status, created_at, accepted_at
		FROM friend_edges
		WHERE (user_lo = $1 OR user_hi = $1) AND status = 'pending' AND requested_by <> $1
		ORDER BY created_at
	`, ref)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var edges []model.FriendEdge
	for rows.Next() {
		var e model.FriendEdge
		var loStr, hiStr, byStr string
		if err := rows.Scan(&loStr, &hiStr, &byStr, &e.Status, &e.CreatedAt, &e.AcceptedAt); err != nil {
			return nil, fmt.Errorf("scan pending edge: %w", err)
		}
		if e.UserLo, err = uuid.Parse(loStr); err != nil {
			return nil, fmt.Errorf("parse user_lo: %w", err)
		}
		if e.UserHi, err = uuid.Parse(hiStr); err != nil {
			return nil, fmt.Errorf("parse user_hi: %w", err)
		}
		if e.RequestedBy, err = uuid.Parse(byStr); err != nil {
			return nil, fmt.Errorf("parse requested_by: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return edges, nil
}
