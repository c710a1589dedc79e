// Package inflight tracks which token addresses have a lifecycle running.
package inflight

import (
	"context"
	"sync"
)

// Store is a set of addresses with atomic add-if-absent semantics.
// TryAcquire returns false when address is already held.
type Store interface {
	TryAcquire(ctx context.Context, address string) (bool, error)
	Release(ctx context.Context, address string) error
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{held: make(map[string]struct{})}
}

func (s *MemoryStore) TryAcquire(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.held[address]; ok {
		return false, nil
	}
	s.held[address] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, address string) error {
	s.mu.Lock()
	delete(s.held, address)
	s.mu.Unlock()
	return nil
}

// Len reports how many addresses are held
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

var _ Store = (*MemoryStore)(nil)
