// Package social maintains the mutual friendship graph: pending requests,
// accepted edges, and adjacency queries.
package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
	"github.com/gatherly/server/internal/repo"
)

// Service answers and mutates the friendship graph. Per-pair serialization is
// delegated to the repo (advisory locks / CAS), so concurrent accept and
// decline cannot both win.
type Service struct {
	friends repo.FriendRepo
}

// NewService creates a friendship service.
func NewService(friends repo.FriendRepo) *Service {
	return &Service{friends: friends}
}

// RequestFriend creates a pending edge initiated by from. Fails with
// ErrSelfFriend for self-requests and ErrAlreadyExists when any edge already
// exists between the pair.
func (s *Service) RequestFriend(ctx context.Context, from, to uuid.UUID) error {
	if from == to {
		return ErrSelfFriend
	}
	lo, hi := model.CanonicalPair(from, to)
	err := s.friends.CreateEdge(ctx, model.FriendEdge{
		UserLo:      lo,
		UserHi:      hi,
		RequestedBy: from,
		Status:      model.FriendPending,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create edge: %w", err)
	}
	return nil
}

// RespondFriend lets the recipient of a pending request accept or decline it.
// Accepting makes the edge mutual; declining removes it entirely.
func (s *Service) RespondFriend(ctx context.Context, responder, requester uuid.UUID, accept bool) error {
	if responder == requester {
		return ErrSelfFriend
	}
	edge, err := s.friends.GetEdge(ctx, responder, requester)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load edge: %w", err)
	}
	// Only the recipient may respond; a requester poking their own request
	// looks the same as no pending request at all.
	if edge.Status != model.FriendPending || edge.RequestedBy != requester {
		return ErrNotFound
	}

	if accept {
		ok, err := s.friends.UpdateStatus(ctx, responder, requester, model.FriendPending, model.FriendAccepted)
		if err != nil {
			return fmt.Errorf("accept edge: %w", err)
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	}

	ok, err := s.friends.DeleteEdgeInStatus(ctx, responder, requester, model.FriendPending)
	if err != nil {
		return fmt.Errorf("decline edge: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Unfriend removes an accepted edge. No-op if the pair are not friends, so a
// repeat call or a race with the other side is harmless.
func (s *Service) Unfriend(ctx context.Context, a, b uuid.UUID) error {
	if a == b {
		return nil
	}
	if _, err := s.friends.DeleteEdgeInStatus(ctx, a, b, model.FriendAccepted); err != nil {
		return fmt.Errorf("remove edge: %w", err)
	}
	return nil
}

// ListFriends returns the identities with an accepted edge to ref.
func (s *Service) ListFriends(ctx context.Context, ref uuid.UUID) ([]uuid.UUID, error) {
	refs, err := s.friends.ListFriendRefs(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return refs, nil
}

// MutualFriends intersects the adjacency sets of a and b. Cost is
// O(degree(a) + degree(b)), independent of total graph size.
func (s *Service) MutualFriends(ctx context.Context, a, b uuid.UUID) ([]uuid.UUID, error) {
	friendsA, err := s.friends.ListFriendRefs(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("list friends of a: %w", err)
	}
	friendsB, err := s.friends.ListFriendRefs(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list friends of b: %w", err)
	}

	setA := make(map[uuid.UUID]struct{}, len(friendsA))
	for _, ref := range friendsA {
		setA[ref] = struct{}{}
	}
	var mutual []uuid.UUID
	for _, ref := range friendsB {
		if _, ok := setA[ref]; ok {
			mutual = append(mutual, ref)
		}
	}
	return mutual, nil
}

// PendingRequests returns the pending requests awaiting ref's response.
func (s *Service) PendingRequests(ctx context.Context, ref uuid.UUID) ([]model.FriendEdge, error) {
	edges, err := s.friends.ListPendingFor(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return edges, nil
}
