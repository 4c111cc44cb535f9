package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/repo"
)

type memoryDirectory struct {
	mu        sync.Mutex
	byRef     map[uuid.UUID]Identity
	byContact map[string]uuid.UUID
}

// NewMemoryDirectory creates an in-memory Directory for tests and dev mode.
func NewMemoryDirectory() Directory {
	return &memoryDirectory{
		byRef:     make(map[uuid.UUID]Identity),
		byContact: make(map[string]uuid.UUID),
	}
}

func (d *memoryDirectory) Lookup(_ context.Context, ref uuid.UUID) (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byRef[ref]
	if !ok {
		return Identity{}, repo.ErrNotFound
	}
	return id, nil
}

func (d *memoryDirectory) ResolveContact(_ context.Context, contact string) (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ref, ok := d.byContact[contact]
	if !ok {
		return Identity{}, repo.ErrNotFound
	}
	return d.byRef[ref], nil
}

func (d *memoryDirectory) EnsureContact(_ context.Context, contact string) (Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ref, ok := d.byContact[contact]; ok {
		return d.byRef[ref], nil
	}
	id := Identity{Ref: uuid.New(), Contact: contact, CreatedAt: time.Now()}
	d.byRef[id.Ref] = id
	d.byContact[contact] = id.Ref
	return id, nil
}
