package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vouch/internal/verification"
	"vouch/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in process memory for dev and tests. A single
// mutex covers both the state index and the pending index, which is what
// makes Create's supersede rule and Consume's one-winner rule atomic.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*verification.Session
	// pending maps "userID/provider" to the state of the one pending session
	// allowed per pair.
	pending map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*verification.Session),
		pending:  make(map[string]string),
	}
}

func pendingKey(s *verification.Session) string {
	return s.UserID.String() + "/" + s.Provider
}

func (st *InMemoryStore) Create(_ context.Context, s *verification.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := pendingKey(s)
	if priorState, ok := st.pending[key]; ok {
		if prior, ok := st.sessions[priorState]; ok && prior.Status == verification.SessionPending {
			prior.MarkExpired()
		}
	}

	st.sessions[s.State] = s
	st.pending[key] = s.State
	return nil
}

func (st *InMemoryStore) Find(_ context.Context, state string) (*verification.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if s, ok := st.sessions[state]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
}

func (st *InMemoryStore) Consume(_ context.Context, state string, now time.Time, success bool) (*verification.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[state]
	if !ok {
		return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}

	if err := s.ValidateForConsume(now); err != nil {
		if s.Status == verification.SessionPending && s.Expired(now) {
			s.MarkExpired()
		}
		return s, err
	}

	if success {
		s.MarkCompleted()
	} else {
		s.MarkFailed()
	}
	delete(st.pending, pendingKey(s))
	return s, nil
}

func (st *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	deleted := 0
	for state, s := range st.sessions {
		if now.After(s.ExpiresAt.Add(retentionGrace)) {
			delete(st.sessions, state)
			if st.pending[pendingKey(s)] == state {
				delete(st.pending, pendingKey(s))
			}
			deleted++
		}
	}
	return deleted, nil
}
