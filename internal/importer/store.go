package importer

import "sync"

// ReviewStore holds the outcome of the most recent batch for one entity
// kind: rows deferred for manual review and rows rejected with errors. Each
// new batch replaces the previous contents wholesale, so the store always
// reflects exactly one import run. Contents are in-memory only and do not
// survive a restart.
type ReviewStore[E any] struct {
	mu      sync.RWMutex
	pending []E
	errors  []RejectedRow
}

// NewReviewStore creates an empty store.
func NewReviewStore[E any]() *ReviewStore[E] {
	return &ReviewStore[E]{}
}

// SetPending replaces the deferred rows with the given batch outcome.
func (s *ReviewStore[E]) SetPending(rows []E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = rows
}

// Pending returns a copy of the deferred rows.
func (s *ReviewStore[E]) Pending() []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]E, len(s.pending))
	copy(out, s.pending)
	return out
}

// ClearPending discards all deferred rows.
func (s *ReviewStore[E]) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// SetErrors replaces the rejected rows with the given batch outcome.
func (s *ReviewStore[E]) SetErrors(rows []RejectedRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = rows
}

// Errors returns a copy of the rejected rows.
func (s *ReviewStore[E]) Errors() []RejectedRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RejectedRow, len(s.errors))
	copy(out, s.errors)
	return out
}

// ClearErrors discards all rejected rows.
func (s *ReviewStore[E]) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = nil
}
