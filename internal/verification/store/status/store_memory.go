package status

import (
	"context"
	"fmt"
	"sync"

	"vouch/internal/verification"
	id "vouch/pkg/domain"
	"vouch/pkg/platform/sentinel"
)

// InMemoryStore keeps trust records in process memory for dev and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID]*verification.StatusRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.UserID]*verification.StatusRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, userID id.UserID) (*verification.StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, fmt.Errorf("verification status not found: %w", sentinel.ErrNotFound)
	}
	// Copy so callers can't mutate the stored record outside Upsert.
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, record *verification.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.records[record.UserID] = &copied
	return nil
}
