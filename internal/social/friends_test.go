package social

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/server/internal/repo"
)

func newTestService() *Service {
	return NewService(repo.NewMemoryFriendRepo())
}

func TestRequestFriend_selfRequest(t *testing.T) {
	svc := newTestService()
	ref := uuid.New()
	assert.ErrorIs(t, svc.RequestFriend(context.Background(), ref, ref), ErrSelfFriend)
}

func TestRequestFriend_duplicate(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, a, b))
	assert.ErrorIs(t, svc.RequestFriend(ctx, a, b), ErrAlreadyExists)
	// The reverse direction hits the same canonical edge.
	assert.ErrorIs(t, svc.RequestFriend(ctx, b, a), ErrAlreadyExists)
}

func TestRespondFriend_acceptMakesMutual(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, a, b))
	require.NoError(t, svc.RespondFriend(ctx, b, a, true))

	friendsOfA, err := svc.ListFriends(ctx, a)
	require.NoError(t, err)
	friendsOfB, err := svc.ListFriends(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{b}, friendsOfA)
	assert.Equal(t, []uuid.UUID{a}, friendsOfB)
}

func TestRespondFriend_declineRemovesEdge(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, a, b))
	require.NoError(t, svc.RespondFriend(ctx, b, a, false))

	friends, err := svc.ListFriends(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, friends)

	// A declined request can be re-sent.
	require.NoError(t, svc.RequestFriend(ctx, a, b))
}

func TestRespondFriend_onlyRecipientMayRespond(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, a, b))

	// The requester accepting their own request looks like no request.
	assert.ErrorIs(t, svc.RespondFriend(ctx, a, b, true), ErrNotFound)

	// A third party has no edge at all.
	assert.ErrorIs(t, svc.RespondFriend(ctx, uuid.New(), a, true), ErrNotFound)
}

func TestRespondFriend_noPendingRequest(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	assert.ErrorIs(t, svc.RespondFriend(ctx, b, a, true), ErrNotFound)

	// Responding twice: the second response finds nothing pending.
	require.NoError(t, svc.RequestFriend(ctx, a, b))
	require.NoError(t, svc.RespondFriend(ctx, b, a, true))
	assert.ErrorIs(t, svc.RespondFriend(ctx, b, a, true), ErrNotFound)
}

func TestUnfriend_idempotent(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, a, b))
	require.NoError(t, svc.RespondFriend(ctx, b, a, true))

	require.NoError(t, svc.Unfriend(ctx, a, b))
	require.NoError(t, svc.Unfriend(ctx, a, b))
	require.NoError(t, svc.Unfriend(ctx, b, a))

	friends, err := svc.ListFriends(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, friends)

	// After unfriending, either side may start over.
	require.NoError(t, svc.RequestFriend(ctx, b, a))
}

func TestUnfriend_pendingEdgeUntouched(t *testing.T) {
	svc := newTestService()
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, a, b))
	require.NoError(t, svc.Unfriend(ctx, a, b))

	// The pending request survives and can still be accepted.
	require.NoError(t, svc.RespondFriend(ctx, b, a, true))
}

func TestMutualFriends(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	shared1, shared2 := uuid.New(), uuid.New()
	onlyA := uuid.New()

	befriend := func(x, y uuid.UUID) {
		require.NoError(t, svc.RequestFriend(ctx, x, y))
		require.NoError(t, svc.RespondFriend(ctx, y, x, true))
	}
	befriend(a, shared1)
	befriend(b, shared1)
	befriend(a, shared2)
	befriend(b, shared2)
	befriend(a, onlyA)

	mutual, err := svc.MutualFriends(ctx, a, b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{shared1, shared2}, mutual)

	// Symmetric.
	reversed, err := svc.MutualFriends(ctx, b, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, mutual, reversed)
}

func TestPendingRequests(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	me := uuid.New()
	x, y := uuid.New(), uuid.New()

	require.NoError(t, svc.RequestFriend(ctx, x, me))
	require.NoError(t, svc.RequestFriend(ctx, y, me))
	// My own outgoing request must not show up as pending for me.
	require.NoError(t, svc.RequestFriend(ctx, me, uuid.New()))

	pending, err := svc.PendingRequests(ctx, me)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	requesters := []uuid.UUID{pending[0].RequestedBy, pending[1].RequestedBy}
	assert.ElementsMatch(t, []uuid.UUID{x, y}, requesters)
}

func TestRespondFriend_concurrentAcceptDecline(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, svc.RequestFriend(ctx, a, b))

	var wg sync.WaitGroup
	var acceptErr, declineErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptErr = svc.RespondFriend(ctx, b, a, true)
	}()
	go func() {
		defer wg.Done()
		declineErr = svc.RespondFriend(ctx, b, a, false)
	}()
	wg.Wait()

	// Exactly one response wins; the other sees no pending request.
	if acceptErr == nil {
		assert.ErrorIs(t, declineErr, ErrNotFound)
	} else {
		assert.ErrorIs(t, acceptErr, ErrNotFound)
		assert.NoError(t, declineErr)
	}
}
