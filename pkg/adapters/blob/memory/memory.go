package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aescanero/dagrun/pkg/ports"
)

// BlobStore implements ports.BlobStore in memory
type BlobStore struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

// NewBlobStore creates an empty store
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under key
func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the data stored under key
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrBlobNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Keys lists the stored keys with the given prefix, sorted
func (s *BlobStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
