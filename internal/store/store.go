package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/driftguard/driftguard/pkg/types"
)

// Entry is a channel snapshot together with the time it was stored.
type Entry struct {
	Snapshot  *types.Snapshot
	UpdatedAt time.Time
}

// GroupEntry is a group snapshot together with the time it was stored.
type GroupEntry struct {
	Snapshot  *types.GroupSnapshot
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory snapshot store, keyed by channel and
// group ID. A background goroutine (Run) periodically evicts entries that
// have not been updated within the configured TTL.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*Entry
	groups   map[string]*GroupEntry
	ttl      time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		channels: make(map[string]*Entry),
		groups:   make(map[string]*GroupEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put stores or replaces the snapshot for snap.ChannelID.
// Callers must not modify snap after calling Put.
func (s *Store) Put(snap *types.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[snap.ChannelID] = &Entry{
		Snapshot:  snap,
		UpdatedAt: s.now(),
	}
}

// PutGroup stores or replaces the snapshot for snap.GroupID.
func (s *Store) PutGroup(snap *types.GroupSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[snap.GroupID] = &GroupEntry{
		Snapshot:  snap,
		UpdatedAt: s.now(),
	}
}

// Get returns the entry for the given channel ID and whether one was found.
// The entry may be stale if the TTL has elapsed.
func (s *Store) Get(channelID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.channels[channelID]
	return e, ok
}

// GetGroup returns the entry for the given group ID and whether one was found.
func (s *Store) GetGroup(groupID string) (*GroupEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.groups[groupID]
	return e, ok
}

// List returns all channel entries whose UpdatedAt is within the TTL.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.channels))
	for _, e := range s.channels {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// ListGroups returns all group entries whose UpdatedAt is within the TTL.
func (s *Store) ListGroups() []*GroupEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*GroupEntry, 0, len(s.groups))
	for _, e := range s.groups {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// TTL returns the store's configured entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Count returns the total number of channel entries currently held,
// including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// Evict removes channel and group entries whose UpdatedAt is older than now
// minus TTL. It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.channels {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.channels, id)
			removed++
		}
	}
	for id, e := range s.groups {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.groups, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second) so entries are evicted promptly. Run blocks
// until ctx is cancelled.
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
				slog.Debug("store: evicted stale snapshots", "count", n)
			}
		}
	}
}
