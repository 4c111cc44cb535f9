package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
)

// memoryRefreshRepo is a mutex-guarded RefreshRepo for tests and dev mode.
// The single mutex gives the same exactly-one-winner semantics as the SQL
// check-and-set.
type memoryRefreshRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.RefreshSession
	byHash   map[string]uuid.UUID
}

// NewMemoryRefreshRepo creates an in-memory RefreshRepo.
func NewMemoryRefreshRepo() RefreshRepo {
	return &memoryRefreshRepo{
		sessions: make(map[uuid.UUID]*model.RefreshSession),
		byHash:   make(map[string]uuid.UUID),
	}
}

func (r *memoryRefreshRepo) Create(_ context.Context, identityRef uuid.UUID, deviceRef *string, tokenHash string, expiresAt time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.sessions[id] = &model.RefreshSession{
		ID:          id,
		IdentityRef: identityRef,
		DeviceRef:   deviceRef,
		TokenHash:   tokenHash,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	r.byHash[tokenHash] = id
	return id, nil
}

func (r *memoryRefreshRepo) FindByTokenHash(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return model.RefreshSession{}, ErrNotFound
	}
	return *r.sessions[id], nil
}

func (r *memoryRefreshRepo) RevokeAndReplace(_ context.Context, sessionID, replacedBy uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	rb := replacedBy
	s.ReplacedBy = &rb
	return true, nil
}

func (r *memoryRefreshRepo) Revoke(_ context.Context, sessionID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	return true, nil
}

func (r *memoryRefreshRepo) RevokeAll(_ context.Context, identityRef uuid.UUID, deviceRef *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, s := range r.sessions {
		if s.IdentityRef != identityRef || s.RevokedAt != nil {
			continue
		}
		if deviceRef != nil && (s.DeviceRef == nil || *s.DeviceRef != *deviceRef) {
			continue
		}
		t := now
		s.RevokedAt = &t
	}
	return nil
}
