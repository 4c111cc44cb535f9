package identity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/repo"
)

type pgDirectory struct {
	db *sql.DB
}

// NewPgDirectory creates a Directory backed by the identities table.
func NewPgDirectory(db *sql.DB) Directory {
	return &pgDirectory{db: db}
}

func (d *pgDirectory) Lookup(ctx context.Context, ref uuid.UUID) (Identity, error) {
	return d.scanOne(ctx, `
		SELECT id, contact, created_at FROM identities WHERE id = $1
	`, ref)
}

func (d *pgDirectory) ResolveContact(ctx context.Context, contact string) (Identity, error) {
	return d.scanOne(ctx, `
		SELECT id, contact, created_at FROM identities WHERE contact = $1
	`, contact)
}

func (d *pgDirectory) EnsureContact(ctx context.Context, contact string) (Identity, error) {
	// Insert-first with ON CONFLICT DO NOTHING, then select: safe under
	// concurrent registration of the same contact.
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO identities (contact)
		VALUES ($1)
		ON CONFLICT (contact) DO NOTHING
	`, contact)
	if err != nil {
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return d.ResolveContact(ctx, contact)
}

func (d *pgDirectory) scanOne(ctx context.Context, query string, arg any) (Identity, error) {
	var id Identity
	var refStr string
	err := d.db.QueryRowContext(ctx, query, arg).Scan(&refStr, &id.Contact, &id.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Identity{}, repo.ErrNotFound
		}
		return Identity{}, fmt.Errorf("query identity: %w", err)
	}
	if id.Ref, err = uuid.Parse(refStr); err != nil {
		return Identity{}, fmt.Errorf("parse identity ref: %w", err)
	}
	return id, nil
}
