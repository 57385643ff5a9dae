package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/machinepulse/machinepulse/internal/compute"
)

// Entry is a result together with the time it was last stored.
type Entry struct {
	Result    *compute.Result
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory result store, keyed by line ID.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured retention period.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the result for res.LineID.
// Callers must not modify res after calling Put.
func (s *Store) Put(res *compute.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[res.LineID] = &Entry{
		Result:    res,
		UpdatedAt: s.now(),
	}
}

// Get returns the Entry for the given line ID and whether one was found.
// Stale entries that have not yet been evicted are not returned.
func (s *Store) Get(lineID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[lineID]
	if !ok || !e.UpdatedAt.After(s.now().Add(-s.ttl)) {
		return nil, false
	}
	return e, true
}

// Remove deletes the entry for lineID, if any.
func (s *Store) Remove(lineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, lineID)
}

// List returns all entries whose UpdatedAt is within the TTL, ordered by
// line ID. Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Result.LineID < out[j].Result.LineID })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale results", "count", n)
			}
		}
	}
}
