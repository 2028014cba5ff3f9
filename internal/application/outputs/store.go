// Package outputs holds the append-only output store of one run.
package outputs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aescanero/dagrun/pkg/domain"
)

var (
	// ErrNotFound is returned for an output that was never recorded.
	ErrNotFound = errors.New("output not found")
	// ErrAlreadyRecorded is returned when an (instance, name) pair is
	// written twice.
	ErrAlreadyRecorded = errors.New("output already recorded")
)

// Store maps (instance, output name) to a value. Values are written at most
// once. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[domain.InstanceID]map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[domain.InstanceID]map[string]string)}
}

// Record appends the outputs of one instance. The call is all or nothing: if
// any name was already recorded for id nothing is written.
func (s *Store) Record(id domain.InstanceID, outputs map[string]string) error {
	if len(outputs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.values[id]
	for name := range outputs {
		if _, ok := existing[name]; ok {
			return fmt.Errorf("%w: %s.%s", ErrAlreadyRecorded, id, name)
		}
	}
	if existing == nil {
		existing = make(map[string]string, len(outputs))
		s.values[id] = existing
	}
	for name, v := range outputs {
		existing[name] = v
	}
	return nil
}

// Resolve returns one recorded output.
func (s *Store) Resolve(id domain.InstanceID, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[id][name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Outputs returns a copy of everything recorded for id.
func (s *Store) Outputs(id domain.InstanceID) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.values[id]
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Merge folds the outputs of a job's instances, given in instance order, into
// the view a dependent sees: for each name the last non-empty value wins.
// Names whose values are all empty resolve to "".
func (s *Store) Merge(ids []domain.InstanceID) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for _, id := range ids {
		for name, v := range s.values[id] {
			if v != "" {
				out[name] = v
			} else if _, ok := out[name]; !ok {
				out[name] = ""
			}
		}
	}
	return out
}
