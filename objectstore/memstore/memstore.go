// Package memstore is an in-memory objectstore.ObjectStore, used in tests and
// by the one-shot backfill command when no real object store is configured.
package memstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/miretskiy/tiercompactor/objectstore"
)

// Store is a mutex-guarded map of path -> bytes.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Get implements objectstore.ObjectStore.
func (s *Store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[path]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put implements objectstore.ObjectStore.
func (s *Store) Put(ctx context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return nil
}

// Delete implements objectstore.ObjectStore.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Exists implements objectstore.ObjectStore.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[path]
	return ok, nil
}
