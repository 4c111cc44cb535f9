package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
)

type pairKey struct {
	lo, hi uuid.UUID
}

// memoryFriendRepo stores the graph as an edge map plus adjacency sets keyed
// by identity, so friend listing and intersection stay proportional to the
// identity's own degree.
type memoryFriendRepo struct {
	mu       sync.Mutex
	edges    map[pairKey]*model.FriendEdge
	accepted map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewMemoryFriendRepo creates an in-memory FriendRepo.
func NewMemoryFriendRepo() FriendRepo {
	return &memoryFriendRepo{
		edges:    make(map[pairKey]*model.FriendEdge),
		accepted: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func keyFor(a, b uuid.UUID) pairKey {
	lo, hi := model.CanonicalPair(a, b)
	return pairKey{lo: lo, hi: hi}
}

func (r *memoryFriendRepo) CreateEdge(_ context.Context, edge model.FriendEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := pairKey{lo: edge.UserLo, hi: edge.UserHi}
	if _, ok := r.edges[k]; ok {
		return ErrDuplicate
	}
	e := edge
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	r.edges[k] = &e
	return nil
}

func (r *memoryFriendRepo) GetEdge(_ context.Context, a, b uuid.UUID) (model.FriendEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.edges[keyFor(a, b)]
	if !ok {
		return model.FriendEdge{}, ErrNotFound
	}
	return *e, nil
}

func (r *memoryFriendRepo) UpdateStatus(_ context.Context, a, b uuid.UUID, from, to model.FriendStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.edges[keyFor(a, b)]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	if to == model.FriendAccepted {
		now := time.Now()
		e.AcceptedAt = &now
		r.link(e.UserLo, e.UserHi)
	}
	return true, nil
}

func (r *memoryFriendRepo) DeleteEdgeInStatus(_ context.Context, a, b uuid.UUID, status model.FriendStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := keyFor(a, b)
	e, ok := r.edges[k]
	if !ok || e.Status != status {
		return false, nil
	}
	delete(r.edges, k)
	r.unlink(e.UserLo, e.UserHi)
	return true, nil
}

func (r *memoryFriendRepo) ListFriendRefs(_ context.Context, ref uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	adj := r.accepted[ref]
	refs := make([]uuid.UUID, 0, len(adj))
	for other := range adj {
		refs = append(refs, other)
	}
	return refs, nil
}

func (r *memoryFriendRepo) ListPendingFor(_ context.Context, ref uuid.UUID) ([]model.FriendEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var edges []model.FriendEdge
	for _, e := range r.edges {
		if e.Status != model.FriendPending || e.RequestedBy == ref {
			continue
		}
		if e.UserLo == ref || e.UserHi == ref {
			edges = append(edges, *e)
		}
	}
	return edges, nil
}

func (r *memoryFriendRepo) link(a, b uuid.UUID) {
	for _, p := range [][2]uuid.UUID{{a, b}, {b, a}} {
		adj, ok := r.accepted[p[0]]
		if !ok {
			adj = make(map[uuid.UUID]struct{})
			r.accepted[p[0]] = adj
		}
		adj[p[1]] = struct{}{}
	}
}

func (r *memoryFriendRepo) unlink(a, b uuid.UUID) {
	delete(r.accepted[a], b)
	delete(r.accepted[b], a)
}
