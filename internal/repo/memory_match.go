package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/server/internal/model"
)

// memoryInterestRepo is a mutex-guarded InterestRepo for tests and dev mode.
type memoryInterestRepo struct {
	mu       sync.Mutex
	byEvent  map[string]map[uuid.UUID]time.Time
	byUser   map[uuid.UUID]map[string]time.Time
}

// NewMemoryInterestRepo creates an in-memory InterestRepo.
func NewMemoryInterestRepo() InterestRepo {
	return &memoryInterestRepo{
		byEvent: make(map[string]map[uuid.UUID]time.Time),
		byUser:  make(map[uuid.UUID]map[string]time.Time),
	}
}

func (r *memoryInterestRepo) Add(_ context.Context, identityRef uuid.UUID, eventRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.byEvent[eventRef]
	if !ok {
		ev = make(map[uuid.UUID]time.Time)
		r.byEvent[eventRef] = ev
	}
	if _, exists := ev[identityRef]; exists {
		return false, nil
	}
	now := time.Now()
	ev[identityRef] = now

	us, ok := r.byUser[identityRef]
	if !ok {
		us = make(map[string]time.Time)
		r.byUser[identityRef] = us
	}
	us[eventRef] = now
	return true, nil
}

func (r *memoryInterestRepo) ListForEvent(_ context.Context, eventRef string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := r.byEvent[eventRef]
	refs := make([]uuid.UUID, 0, len(ev))
	for ref := range ev {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return ev[refs[i]].Before(ev[refs[j]]) })
	return refs, nil
}

func (r *memoryInterestRepo) ListEventsFor(_ context.Context, identityRef uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	us := r.byUser[identityRef]
	events := make([]string, 0, len(us))
	for ev := range us {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return us[events[i]].Before(us[events[j]]) })
	return events, nil
}

// memoryMatchRepo is a mutex-guarded MatchRepo for tests and dev mode.
type memoryMatchRepo struct {
	mu      sync.Mutex
	matches map[string]*model.MatchRecord
}

// NewMemoryMatchRepo creates an in-memory MatchRepo.
func NewMemoryMatchRepo() MatchRepo {
	return &memoryMatchRepo{matches: make(map[string]*model.MatchRecord)}
}

func (r *memoryMatchRepo) Create(_ context.Context, rec model.MatchRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.matches[rec.EventRef]; ok {
		return false, nil
	}
	stored := rec
	stored.Members = append([]uuid.UUID(nil), rec.Members...)
	r.matches[rec.EventRef] = &stored
	return true, nil
}

func (r *memoryMatchRepo) Get(_ context.Context, eventRef string) (model.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.matches[eventRef]
	if !ok {
		return model.MatchRecord{}, ErrNotFound
	}
	return cloneMatch(rec), nil
}

func (r *memoryMatchRepo) SetChannelRef(_ context.Context, eventRef, channelRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.matches[eventRef]
	if !ok || rec.ChannelRef != nil {
		return false, nil
	}
	ch := channelRef
	rec.ChannelRef = &ch
	return true, nil
}

func (r *memoryMatchRepo) RecordAttempt(_ context.Context, eventRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.matches[eventRef]; ok {
		rec.ProvisionAttempts++
		now := time.Now()
		rec.LastAttemptAt = &now
	}
	return nil
}

func (r *memoryMatchRepo) ListPendingChannel(_ context.Context, limit int) ([]model.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recs []model.MatchRecord
	for _, rec := range r.matches {
		if rec.ChannelRef == nil {
			recs = append(recs, cloneMatch(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].FormedAt.Before(recs[j].FormedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func cloneMatch(rec *model.MatchRecord) model.MatchRecord {
	out := *rec
	out.Members = append([]uuid.UUID(nil), rec.Members...)
	return out
}
