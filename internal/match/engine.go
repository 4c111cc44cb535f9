// Package match records per-user event interest and forms a match once
// enough identities want the same event, provisioning a group channel for
// them through the messaging gateway.
package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
	"github.com/gatherly/server/internal/repo"
)

// Engine applies the matching policy: a match forms when the number of
// distinct interested identities reaches the threshold. Membership is frozen
// at formation; later interest is recorded but does not join the match.
type Engine struct {
	interests   repo.InterestRepo
	matches     repo.MatchRepo
	provisioner Provisioner
	threshold   int
	callTimeout time.Duration
}

// NewEngine creates a match engine. threshold is the minimum number of
// distinct interested identities; values below 2 are raised to 2.
func NewEngine(interests repo.InterestRepo, matches repo.MatchRepo, provisioner Provisioner, threshold int, callTimeout time.Duration) *Engine {
	if threshold < 2 {
		threshold = 2
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Engine{
		interests:   interests,
		matches:     matches,
		provisioner: provisioner,
		threshold:   threshold,
		callTimeout: callTimeout,
	}
}

// ExpressInterest idempotently records the identity's interest in the event.
// If this pushes the interested set to the threshold and no match exists yet,
// exactly one MatchRecord is created and channel provisioning is attempted
// once. The returned record (possibly still channel-pending) is non-nil
// whenever a match exists for the event.
func (e *Engine) ExpressInterest(ctx context.Context, identityRef uuid.UUID, eventRef string) (*model.MatchRecord, error) {
	if _, err := e.interests.Add(ctx, identityRef, eventRef); err != nil {
		return nil, fmt.Errorf("record interest: %w", err)
	}

	// Already matched: membership is frozen, nothing more to do.
	if rec, err := e.matches.Get(ctx, eventRef); err == nil {
		return &rec, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check match: %w", err)
	}

	members, err := e.interests.ListForEvent(ctx, eventRef)
	if err != nil {
		return nil, fmt.Errorf("list interested: %w", err)
	}
	if len(members) < e.threshold {
		return nil, nil
	}

	rec := model.MatchRecord{
		EventRef: eventRef,
		Members:  members,
		FormedAt: time.Now(),
	}
	created, err := e.matches.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	if !created {
		// Another interest raced us past the threshold and won the insert.
		existing, err := e.matches.Get(ctx, eventRef)
		if err != nil {
			return nil, fmt.Errorf("load match: %w", err)
		}
		return &existing, nil
	}

	log.Printf("match formed for event %s with %d members", eventRef, len(members))

	// Only the creator attempts provisioning, so the gateway sees at most one
	// call per match here; the retrier owns all later attempts. A gateway
	// outage must not unwind the match, and the caller's request context must
	// not cancel a half-done provisioning, hence the detached context.
	provisionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.callTimeout)
	defer cancel()
	if err := e.provision(provisionCtx, &rec); err != nil {
		log.Printf("channel provisioning pending for event %s: %v", eventRef, err)
	}
	return &rec, nil
}

// Match returns the match record for the event, if one has formed.
func (e *Engine) Match(ctx context.Context, eventRef string) (*model.MatchRecord, error) {
	rec, err := e.matches.Get(ctx, eventRef)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load match: %w", err)
	}
	return &rec, nil
}

// Interests returns the events the identity has expressed interest in.
func (e *Engine) Interests(ctx context.Context, identityRef uuid.UUID) ([]string, error) {
	events, err := e.interests.ListEventsFor(ctx, identityRef)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	return events, nil
}

// provision calls the gateway once and records the outcome. On success the
// channel ref is set on the match; on failure the match stays pending for the
// retrier.
func (e *Engine) provision(ctx context.Context, rec *model.MatchRecord) error {
	if err := e.matches.RecordAttempt(ctx, rec.EventRef); err != nil {
		return err
	}
	channelRef, err := e.provisioner.ProvisionChannel(ctx, rec.EventRef, rec.Members)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if _, err := e.matches.SetChannelRef(ctx, rec.EventRef, channelRef); err != nil {
		return err
	}
	ch := channelRef
	rec.ChannelRef = &ch
	return nil
}
