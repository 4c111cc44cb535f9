// Package identity is the boundary to the profile collaborator. The core
// never mutates profile data; it only resolves contact identifiers to stable
// identity references.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identity is the core's view of a registered identity: a stable reference
// and the contact identifier OTP codes are delivered to.
type Identity struct {
	Ref       uuid.UUID
	Contact   string
	CreatedAt time.Time
}

// Directory resolves identities. Lookup and ResolveContact fail with
// repo.ErrNotFound for unknown inputs; EnsureContact registers the contact on
// first sight (the register flow).
type Directory interface {
	Lookup(ctx context.Context, ref uuid.UUID) (Identity, error)
	ResolveContact(ctx context.Context, contact string) (Identity, error)
	EnsureContact(ctx context.Context, contact string) (Identity, error)
}
