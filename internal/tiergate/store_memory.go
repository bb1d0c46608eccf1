package tiergate

import (
	"context"
	"sync"

	id "vouch/pkg/domain"
)

// InMemoryConsumptionStore tracks submission allowances in process memory.
type InMemoryConsumptionStore struct {
	mu       sync.Mutex
	consumed map[id.UserID]bool
}

func NewInMemoryConsumptionStore() *InMemoryConsumptionStore {
	return &InMemoryConsumptionStore{consumed: make(map[id.UserID]bool)}
}

func (s *InMemoryConsumptionStore) TryConsume(_ context.Context, userID id.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed[userID] {
		return false, nil
	}
	s.consumed[userID] = true
	return true, nil
}

func (s *InMemoryConsumptionStore) Consumed(_ context.Context, userID id.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed[userID], nil
}
