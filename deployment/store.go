package deployment

import (
	"sync"

	"github.com/relational-network/tee-devops-runner/interfaces"
)

// Store is a concurrency-safe keyed store of deployment records. Records are
// stored by value and replaced whole on every transition, so a reader never
// observes a partially-updated record. Each record has exactly one writer
// (its own pipeline task); reads may happen concurrently.
type Store struct {
	mu      sync.RWMutex
	records map[string]interfaces.DeploymentRecord
}

// NewStore creates an empty deployment store.
func NewStore() *Store {
	return &Store{records: make(map[string]interfaces.DeploymentRecord)}
}

// Put inserts or replaces the record for rec.RequestID.
func (s *Store) Put(rec interfaces.DeploymentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RequestID] = rec
}

// Get returns a copy of the record for the given request ID, or
// interfaces.ErrDeploymentNotFound.
func (s *Store) Get(requestID string) (interfaces.DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[requestID]
	if !ok {
		return interfaces.DeploymentRecord{}, interfaces.ErrDeploymentNotFound
	}
	return rec, nil
}

// Update applies fn to a copy of the record and swaps the whole record in one
// step. The status may only advance forward; transitions that regress the
// status or leave a terminal state are rejected with ErrStatusRegression.
func (s *Store) Update(requestID string, fn func(*interfaces.DeploymentRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[requestID]
	if !ok {
		return interfaces.ErrDeploymentNotFound
	}

	next := rec
	fn(&next)

	if next.Status != rec.Status {
		if rec.Status.Terminal() || next.Status.Rank() < rec.Status.Rank() {
			return interfaces.ErrStatusRegression
		}
	}

	s.records[requestID] = next
	return nil
}

// Len returns the number of tracked deployments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
