// Package docstore files notification documents into the firm's
// document repository and hands out download links.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound marks a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrStore marks a repository-level fault (network, credentials,
	// bucket).
	ErrStore = errors.New("document store unavailable")
)

// Store is the document repository. Keys are slash-separated paths
// rooted at the case folder.
type Store interface {
	// Put writes a document, overwriting any previous content.
	Put(ctx context.Context, key string, data []byte) error
	// Get reads a document.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether a document is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Link returns a shareable URL for a stored document.
	Link(ctx context.Context, key string) (string, error)
	// List returns all keys under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Key builds a repository key from a folder and a file name.
func Key(folder, name string) string {
	return path.Join(strings.Trim(folder, "/"), name)
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.docs[key] = buf
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[key]
	return ok, nil
}

func (s *MemoryStore) Link(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return "memory://" + key, nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
