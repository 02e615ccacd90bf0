package plan

import (
	"context"
	"fmt"
	"sync"
)

// Store persists plans. Update performs a compare-and-swap on the
// plan's Version: a concurrent transition that landed first makes the
// update fail with ErrConflict, so no transition is ever silently
// overwritten.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
	List(ctx context.Context, status Status) ([]*Plan, error)
}

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewMemoryStore creates an empty in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*Plan)}
}

func (s *MemoryStore) Create(_ context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[p.ID]; exists {
		return fmt.Errorf("%w: plan %s already exists", ErrConflict, p.ID)
	}
	p.Version = 1
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[p.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	if stored.Version != p.Version {
		return fmt.Errorf("%w: plan %s version %d, expected %d", ErrConflict, p.ID, stored.Version, p.Version)
	}
	p.Version++
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context, status Status) ([]*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if status == "" || p.Status == status {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}
