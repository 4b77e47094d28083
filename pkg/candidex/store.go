package candidex

import (
	"sync"
	"time"
)

// Store owns the current index snapshot and the single in-flight refresh
// handle. It is the only mutable state in the package: snapshots are
// swapped by reference and never modified after installation.
type Store struct {
	mu       sync.Mutex
	current  *Index
	inflight *flight
}

// flight is the in-flight refresh handle. Callers arriving while one is set
// attach to it instead of starting a second scan; the handle is cleared
// unconditionally when the flight ends, success or failure.
type flight struct {
	done  chan struct{}
	index *Index
	err   error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the installed snapshot, which may be nil before the
// first successful refresh.
func (s *Store) Current() *Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RefreshInFlight reports whether a refresh is currently running.
func (s *Store) RefreshInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// install swaps in a new snapshot.
func (s *Store) install(ix *Index) {
	s.mu.Lock()
	s.current = ix
	s.mu.Unlock()
}

// beginFlight returns the active flight and whether the caller started it.
// When started is false the caller must wait on the returned handle.
func (s *Store) beginFlight() (fl *flight, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		return s.inflight, false
	}
	s.inflight = &flight{done: make(chan struct{})}
	return s.inflight, true
}

// finishFlight publishes the outcome, wakes attached callers, and clears
// the in-flight marker so the next refresh may start.
func (s *Store) finishFlight(fl *flight, ix *Index, err error) {
	s.mu.Lock()
	fl.index = ix
	fl.err = err
	if s.inflight == fl {
		s.inflight = nil
	}
	s.mu.Unlock()
	close(fl.done)
}

// Metadata describes the current snapshot for callers that need to explain
// staleness (age, completeness, whether a refresh is running).
type Metadata struct {
	BuiltAt         string `json:"builtAt,omitempty"`
	AgeMs           int64  `json:"ageMs"`
	Size            int    `json:"size"`
	ScannedCount    int    `json:"scannedCount"`
	IsComplete      bool   `json:"isComplete"`
	RefreshInFlight bool   `json:"refreshInFlight"`
}

// Metadata reports the state of the current snapshot at now.
func (s *Store) Metadata(now time.Time) Metadata {
	s.mu.Lock()
	ix := s.current
	inflight := s.inflight != nil
	s.mu.Unlock()

	md := Metadata{RefreshInFlight: inflight}
	if ix != nil {
		md.BuiltAt = ix.BuiltAt
		md.AgeMs = ix.Age(now).Milliseconds()
		md.Size = ix.Size()
		md.ScannedCount = ix.ScannedCount
		md.IsComplete = ix.IsComplete
	}
	return md
}
