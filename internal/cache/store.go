// Package cache provides the in-process topic cache. One entry per source,
// replaced atomically as a whole on each commit; readers get copies and can
// never observe a partially applied refresh.
//
// The cache is ephemeral: it rebuilds from upstream after a restart. There
// is no disk persistence.
package cache

import (
	"sync"
	"time"

	"github.com/SovereignSignal/discusswatch/internal/domain"
)

// Store is the mutex-guarded cache table. It is the only owner of entry
// mutation; every write goes through Commit, CommitError, or ClearDefunct.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*versioned
	now     func() time.Time
}

// versioned pairs an entry with the sequence number of the commit that
// produced it. A commit carrying a sequence lower than the applied one is a
// late arrival from an older refresh and is dropped.
type versioned struct {
	entry domain.CacheEntry
	seq   uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*versioned),
		now:     time.Now,
	}
}

// NewStoreWithClock creates a Store with an injectable clock for tests.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// Get returns the last known entry for sourceID, or an empty entry for an
// unknown source. Never blocks on a fetch.
func (s *Store) Get(sourceID string) domain.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[sourceID]
	if !ok {
		return domain.CacheEntry{SourceID: sourceID}
	}
	return copyEntry(v.entry)
}

// Commit atomically replaces the entry for sourceID with a successful fetch
// result. Returns false when seq is stale and the commit was dropped.
func (s *Store) Commit(sourceID string, topics []domain.Topic, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[sourceID]
	if ok && seq <= prev.seq {
		return false
	}

	entry := domain.CacheEntry{
		SourceID:  sourceID,
		Topics:    topics,
		FetchedAt: s.now(),
	}
	// Success clears a prior error but not the defunct flag; that flag
	// only resets via explicit admin action.
	if ok {
		entry.Defunct = prev.entry.Defunct
	}

	s.entries[sourceID] = &versioned{entry: entry, seq: seq}
	return true
}

// CommitError records a failed fetch, preserving the prior topics and fetch
// timestamp so readers keep getting stale-but-served data. The defunct flag
// is sticky once set. Returns false when seq is stale.
func (s *Store) CommitError(sourceID string, errInfo domain.ErrorInfo, defunct bool, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[sourceID]
	if ok && seq <= prev.seq {
		return false
	}

	entry := domain.CacheEntry{SourceID: sourceID}
	if ok {
		entry.Topics = prev.entry.Topics
		entry.FetchedAt = prev.entry.FetchedAt
		entry.Defunct = prev.entry.Defunct
	}
	entry.LastError = &errInfo
	if defunct {
		entry.Defunct = true
	}

	s.entries[sourceID] = &versioned{entry: entry, seq: seq}
	return true
}

// ClearDefunct resets the sticky defunct flag and last error for sourceID.
// Admin action only.
func (s *Store) ClearDefunct(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[sourceID]
	if !ok {
		return
	}
	entry := copyEntry(prev.entry)
	entry.Defunct = false
	entry.LastError = nil
	s.entries[sourceID] = &versioned{entry: entry, seq: prev.seq}
}

// Snapshot returns a point-in-time copy of every entry. The copy shares no
// mutable state with the store, so aggregation can read it while refreshes
// keep committing.
func (s *Store) Snapshot() []domain.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CacheEntry, 0, len(s.entries))
	for _, v := range s.entries {
		out = append(out, copyEntry(v.entry))
	}
	return out
}

// Seq returns the sequence of the last applied commit for sourceID.
func (s *Store) Seq(sourceID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.entries[sourceID]; ok {
		return v.seq
	}
	return 0
}

// copyEntry deep-copies an entry so callers cannot mutate cache state.
func copyEntry(e domain.CacheEntry) domain.CacheEntry {
	out := e
	if e.Topics != nil {
		out.Topics = make([]domain.Topic, len(e.Topics))
		copy(out.Topics, e.Topics)
		for i := range out.Topics {
			if tags := out.Topics[i].Tags; tags != nil {
				out.Topics[i].Tags = append([]string(nil), tags...)
			}
		}
	}
	if e.LastError != nil {
		errCopy := *e.LastError
		out.LastError = &errCopy
	}
	return out
}
