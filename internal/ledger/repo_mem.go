package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation used in
// tests and single-process development setups. It mirrors the Postgres
// store's semantics, including the duplicate-block-number rejection.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, e *Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if existing.BlockNumber == e.BlockNumber {
			return nil, ErrDuplicateBlock
		}
	}

	stored := *e
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	s.entries = append(s.entries, &stored)
	return &stored, nil
}

func (s *MemoryStore) Latest(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.entries[len(s.entries)-1], nil
}

func (s *MemoryStore) ScanByBlock(_ context.Context, from int64, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.sortedByBlock() {
		if e.BlockNumber < from {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Find(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Entry
	for _, e := range s.entries {
		if matches(e, f) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].BlockNumber > matched[j].BlockNumber
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) Stats(_ context.Context, recentWindow time.Duration) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{
		ByActionType: map[string]int64{},
		ByEntityType: map[string]int64{},
	}
	cutoff := time.Now().UTC().Add(-recentWindow)
	actors := map[string]struct{}{}

	for _, e := range s.entries {
		st.TotalEntries++
		if !e.CreatedAt.Before(cutoff) {
			st.RecentEntries++
		}
		actors[e.ActorID] = struct{}{}
		st.ByActionType[e.ActionType]++
		st.ByEntityType[e.EntityType]++
	}
	st.UniqueActors = int64(len(actors))
	return st, nil
}

// Tamper mutates the stored entry with the given block number in place,
// bypassing the append-only API. Test helper for simulating an attacker
// with direct store access.
func (s *MemoryStore) Tamper(blockNumber int64, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.BlockNumber == blockNumber {
			mutate(e)
			return true
		}
	}
	return false
}

// Remove deletes the stored entry with the given block number, bypassing
// the append-only API. Test helper for simulating out-of-band deletion.
func (s *MemoryStore) Remove(blockNumber int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.BlockNumber == blockNumber {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *MemoryStore) sortedByBlock() []*Entry {
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}

func matches(e *Entry, f Filter) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ActionType != "" && e.ActionType != NormalizeActionType(f.ActionType) {
		return false
	}
	if f.EntityType != "" && e.EntityType != NormalizeEntityType(f.EntityType) {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Start != nil && e.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.CreatedAt.After(*f.End) {
		return false
	}
	return true
}
