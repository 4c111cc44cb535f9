package repo

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
)

// memoryOtpRepo is a mutex-guarded OtpRepo for tests and dev mode.
type memoryOtpRepo struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*model.OtpChallenge
}

// NewMemoryOtpRepo creates an in-memory OtpRepo.
func NewMemoryOtpRepo() OtpRepo {
	return &memoryOtpRepo{challenges: make(map[uuid.UUID]*model.OtpChallenge)}
}

func (r *memoryOtpRepo) CreateOrReplaceChallenge(_ context.Context, identityRef uuid.UUID, purpose model.Purpose, codeHashHex string, expiresAt time.Time, requestIP, userAgent *string) (uuid.UUID, error) {
	hash, err := hex.DecodeString(codeHashHex)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode code hash: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, ch := range r.challenges {
		if ch.IdentityRef == identityRef && ch.Purpose == purpose && ch.ConsumedAt == nil {
			t := now
			ch.ConsumedAt = &t
		}
	}

	id := uuid.New()
	r.challenges[id] = &model.OtpChallenge{
		ID:          id,
		IdentityRef: identityRef,
		Purpose:     purpose,
		CodeHash:    hash,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		RequestIP:   requestIP,
		UserAgent:   userAgent,
	}
	return id, nil
}

func (r *memoryOtpRepo) GetOutstanding(_ context.Context, identityRef uuid.UUID, purpose model.Purpose) (model.OtpChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *model.OtpChallenge
	for _, ch := range r.challenges {
		if ch.IdentityRef != identityRef || ch.Purpose != purpose || ch.ConsumedAt != nil {
			continue
		}
		if latest == nil || ch.CreatedAt.After(latest.CreatedAt) {
			latest = ch
		}
	}
	if latest == nil {
		return model.OtpChallenge{}, ErrNotFound
	}
	return cloneChallenge(latest), nil
}

func (r *memoryOtpRepo) IncrementAttempt(_ context.Context, challengeID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[challengeID]
	if !ok {
		return 0, ErrNotFound
	}
	ch.AttemptCount++
	now := time.Now()
	ch.LastAttemptAt = &now
	return ch.AttemptCount, nil
}

func (r *memoryOtpRepo) MarkConsumed(_ context.Context, challengeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[challengeID]
	if !ok || ch.ConsumedAt != nil {
		return false, nil
	}
	now := time.Now()
	ch.ConsumedAt = &now
	return true, nil
}

func (r *memoryOtpRepo) CountRecentRequests(_ context.Context, identityRef uuid.UUID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, ch := range r.challenges {
		if ch.IdentityRef == identityRef && !ch.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func cloneChallenge(ch *model.OtpChallenge) model.OtpChallenge {
	out := *ch
	out.CodeHash = append([]byte(nil), ch.CodeHash...)
	return out
}
