// Package store owns the mutable per-station state. Each station has its own
// lock, so updates to different stations never contend; updates to the same
// station are serialized.
package store

import (
	"sort"
	"sync"
	"time"

	"store-sentinel/internal/models"
)

type entry struct {
	mu    sync.Mutex
	state models.StationState
}

// Store is the station state store. Entries are created on first sighting and
// never deleted; the set of real stations is finite.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) getOrCreate(stationID string, firstSeen time.Time) *entry {
	s.mu.RLock()
	e, ok := s.entries[stationID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[stationID]; ok {
		return e
	}
	e = &entry{state: models.NewStationState(stationID, firstSeen)}
	s.entries[stationID] = e
	return e
}

// Update applies fn to the station's state under its lock, creating the
// station if this is its first sighting.
func (s *Store) Update(stationID string, firstSeen time.Time, fn func(*models.StationState)) {
	e := s.getOrCreate(stationID, firstSeen)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
}

// Snapshot returns a deep copy of the station's state for read-only use by
// detectors.
func (s *Store) Snapshot(stationID string) (models.StationState, bool) {
	s.mu.RLock()
	e, ok := s.entries[stationID]
	s.mu.RUnlock()
	if !ok {
		return models.StationState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), true
}

// StationIDs returns all known stations in stable order.
func (s *Store) StationIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshots returns copies of every station's state, ordered by station ID.
func (s *Store) Snapshots() []models.StationState {
	ids := s.StationIDs()
	out := make([]models.StationState, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.Snapshot(id); ok {
			out = append(out, st)
		}
	}
	return out
}
