// Package memory stores documents in-memory for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/imagesize-intrinsic/internal/storage"
)

// Store keeps copies of written documents.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// Read returns a copy of the named document.
func (s *Store) Read(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, storage.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data under name.
func (s *Store) Write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = append([]byte(nil), data...)
	return nil
}

// Len reports how many documents are currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
