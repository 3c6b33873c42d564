package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextintranet/stationlink/pkg/types"
)

// Entry is a relayed event together with the group it was sent to and the
// time the relay saw it.
type Entry struct {
	Event      types.Event
	Group      string
	ReceivedAt time.Time
}

// Store is a thread-safe in-memory buffer of recently relayed events, oldest
// first. It holds at most max entries; a background goroutine (Run)
// periodically evicts entries older than the configured TTL.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	ttl     time.Duration
	max     int
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL and capacity.
func New(ttl time.Duration, max int) *Store {
	if max <= 0 {
		max = 1
	}
	return &Store{
		ttl: ttl,
		max: max,
		now: time.Now,
	}
}

// Put records ev as sent to group. When the store is full the oldest entry
// is dropped.
func (s *Store) Put(ev types.Event, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Event: ev, Group: group, ReceivedAt: s.now()})
	if over := len(s.entries) - s.max; over > 0 {
		// Copy so the backing array does not grow without bound.
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
}

// List returns live entries, newest first. A non-empty station limits the
// result to events whose StationID matches or that were relayed to group,
// the station's group name; an event routed by its sender's connection
// carries no StationID and is found by group. limit <= 0 means no limit.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List(station, group string, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !e.ReceivedAt.After(cutoff) {
			break
		}
		if station != "" && e.Event.StationID != station && (group == "" || e.Group != group) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes entries whose ReceivedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	i := 0
	for i < len(s.entries) && !s.entries[i].ReceivedAt.After(cutoff) {
		i++
	}
	if i > 0 {
		s.entries = append([]Entry(nil), s.entries[i:]...)
	}
	return i
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled.
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
				slog.Debug("store: evicted stale events", "count", n)
			}
		}
	}
}
