package match

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/server/internal/repo"
)

// fakeProvisioner counts calls and can be made to fail.
type fakeProvisioner struct {
	calls   atomic.Int64
	failing atomic.Bool
}

func (p *fakeProvisioner) ProvisionChannel(_ context.Context, eventRef string, _ []uuid.UUID) (string, error) {
	p.calls.Add(1)
	if p.failing.Load() {
		return "", errors.New("gateway timeout")
	}
	return "channel-" + eventRef, nil
}

func newTestEngine(threshold int) (*Engine, *fakeProvisioner) {
	prov := &fakeProvisioner{}
	engine := NewEngine(repo.NewMemoryInterestRepo(), repo.NewMemoryMatchRepo(), prov, threshold, time.Second)
	return engine, prov
}

func TestExpressInterest_belowThreshold(t *testing.T) {
	engine, prov := newTestEngine(3)
	ctx := context.Background()

	rec, err := engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Zero(t, prov.calls.Load())
}

func TestExpressInterest_formsMatchAtThreshold(t *testing.T) {
	engine, prov := newTestEngine(2)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	rec, err := engine.ExpressInterest(ctx, a, "concert-1")
	require.NoError(t, err)
	require.Nil(t, rec)

	rec, err = engine.ExpressInterest(ctx, b, "concert-1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.ElementsMatch(t, []uuid.UUID{a, b}, rec.Members)
	require.NotNil(t, rec.ChannelRef)
	assert.Equal(t, "channel-concert-1", *rec.ChannelRef)
	assert.Equal(t, int64(1), prov.calls.Load())
}

func TestExpressInterest_idempotent(t *testing.T) {
	engine, _ := newTestEngine(3)
	ctx := context.Background()
	ref := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := engine.ExpressInterest(ctx, ref, "concert-1")
		require.NoError(t, err)
	}
	// One more distinct identity must still be one short of the threshold.
	rec, err := engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExpressInterest_lateJoinerExcluded(t *testing.T) {
	engine, prov := newTestEngine(2)
	ctx := context.Background()
	a, b, late := uuid.New(), uuid.New(), uuid.New()

	_, err := engine.ExpressInterest(ctx, a, "concert-1")
	require.NoError(t, err)
	formed, err := engine.ExpressInterest(ctx, b, "concert-1")
	require.NoError(t, err)
	require.NotNil(t, formed)

	// Interest after formation is recorded but membership stays frozen.
	rec, err := engine.ExpressInterest(ctx, late, "concert-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, rec.Members)
	assert.NotContains(t, rec.Members, late)

	// No second provisioning call either.
	assert.Equal(t, int64(1), prov.calls.Load())

	events, err := engine.Interests(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, []string{"concert-1"}, events)
}

func TestExpressInterest_concurrentSingleMatch(t *testing.T) {
	engine, prov := newTestEngine(2)
	ctx := context.Background()

	const workers = 12
	var wg sync.WaitGroup
	errs := make([]error, workers)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.ExpressInterest(ctx, uuid.New(), "concert-1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	rec, err := engine.Match(ctx, "concert-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.GreaterOrEqual(t, len(rec.Members), 2)
	assert.Equal(t, int64(1), prov.calls.Load(), "only the match creator provisions")
}

func TestExpressInterest_gatewayFailureLeavesMatchPending(t *testing.T) {
	engine, prov := newTestEngine(2)
	ctx := context.Background()
	prov.failing.Store(true)

	_, err := engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	rec, err := engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	require.NotNil(t, rec, "the match survives a gateway outage")
	assert.True(t, rec.ChannelPending())

	stored, err := engine.Match(ctx, "concert-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.ChannelPending())
	assert.Equal(t, 1, stored.ProvisionAttempts)
}

func TestSweep_completesPendingMatch(t *testing.T) {
	engine, prov := newTestEngine(2)
	ctx := context.Background()
	prov.failing.Store(true)

	_, err := engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	_, err = engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)

	retrier := &Retrier{
		engine:      engine,
		interval:    time.Second,
		baseBackoff: time.Millisecond,
		maxRetries:  3,
		maxAttempts: 10,
	}

	// Gateway still down: the sweep fails and the match stays pending.
	err = retrier.Sweep(ctx)
	require.Error(t, err)
	rec, err := engine.Match(ctx, "concert-1")
	require.NoError(t, err)
	assert.True(t, rec.ChannelPending())

	// Gateway recovers: the next sweep provisions the channel.
	prov.failing.Store(false)
	require.NoError(t, retrier.Sweep(ctx))

	rec, err = engine.Match(ctx, "concert-1")
	require.NoError(t, err)
	require.NotNil(t, rec.ChannelRef)
	assert.Equal(t, "channel-concert-1", *rec.ChannelRef)

	// A completed match is not swept again.
	calls := prov.calls.Load()
	require.NoError(t, retrier.Sweep(ctx))
	assert.Equal(t, calls, prov.calls.Load())
}

func TestSweep_abandonsExhaustedMatch(t *testing.T) {
	engine, prov := newTestEngine(2)
	ctx := context.Background()
	prov.failing.Store(true)

	_, err := engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)
	_, err = engine.ExpressInterest(ctx, uuid.New(), "concert-1")
	require.NoError(t, err)

	retrier := &Retrier{
		engine:      engine,
		interval:    time.Second,
		baseBackoff: time.Millisecond,
		maxRetries:  0,
		maxAttempts: 2,
	}

	// First sweep spends the second (and last) allowed attempt.
	require.Error(t, retrier.Sweep(ctx))

	// Attempts exhausted: further sweeps skip the match entirely.
	calls := prov.calls.Load()
	require.NoError(t, retrier.Sweep(ctx))
	assert.Equal(t, calls, prov.calls.Load())
}

func TestMatch_noMatchFormed(t *testing.T) {
	engine, _ := newTestEngine(2)

	rec, err := engine.Match(context.Background(), "concert-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
