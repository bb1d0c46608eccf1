package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vouch/internal/verification"
	"vouch/pkg/platform/sentinel"
)

// RedisStore backs the session store with Redis so multiple orchestrator
// instances share correlation state. Key TTLs handle eviction; a SETNX
// consumption marker elects the single winner when callbacks race.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(state string) string { return "verify:session:" + state }

func consumedKey(state string) string { return "verify:consumed:" + state }

func redisPendingKey(s *verification.Session) string {
	return "verify:pending:" + s.UserID.String() + "/" + s.Provider
}

func (st *RedisStore) write(ctx context.Context, s *verification.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := st.client.Set(ctx, sessionKey(s.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (st *RedisStore) Create(ctx context.Context, s *verification.Session) error {
	ttl := time.Until(s.ExpiresAt.Add(retentionGrace))
	if ttl <= 0 {
		return fmt.Errorf("session expiry must be in the future: %w", sentinel.ErrInvalidState)
	}

	// Supersede a prior pending session for the same (user, provider).
	pendKey := redisPendingKey(s)
	if priorState, err := st.client.Get(ctx, pendKey).Result(); err == nil && priorState != "" {
		if prior, err := st.Find(ctx, priorState); err == nil && prior.Status == verification.SessionPending {
			prior.MarkExpired()
			if err := st.write(ctx, prior, time.Until(prior.ExpiresAt.Add(retentionGrace))); err != nil {
				return err
			}
		}
	} else if err != nil && err != redis.Nil {
		return fmt.Errorf("read pending index: %w", err)
	}

	if err := st.write(ctx, s, ttl); err != nil {
		return err
	}
	if err := st.client.Set(ctx, pendKey, s.State, ttl).Err(); err != nil {
		return fmt.Errorf("write pending index: %w", err)
	}
	return nil
}

func (st *RedisStore) Find(ctx context.Context, state string) (*verification.Session, error) {
	val, err := st.client.Get(ctx, sessionKey(state)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("verification session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var s verification.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (st *RedisStore) Consume(ctx context.Context, state string, now time.Time, success bool) (*verification.Session, error) {
	s, err := st.Find(ctx, state)
	if err != nil {
		return nil, err
	}

	if vErr := s.ValidateForConsume(now); vErr != nil {
		if s.Status == verification.SessionPending && s.Expired(now) {
			s.MarkExpired()
			_ = st.write(ctx, s, retentionGrace)
		}
		return s, vErr
	}

	// One winner per state: SETNX on the consumption marker decides.
	won, err := st.client.SetNX(ctx, consumedKey(state), "1", retentionGrace).Result()
	if err != nil {
		return nil, fmt.Errorf("mark session consumed: %w", err)
	}
	if !won {
		if latest, err := st.Find(ctx, state); err == nil {
			s = latest
		}
		return s, fmt.Errorf("session %q already consumed: %w", state, sentinel.ErrAlreadyUsed)
	}

	if success {
		s.MarkCompleted()
	} else {
		s.MarkFailed()
	}
	if err := st.write(ctx, s, retentionGrace); err != nil {
		return nil, err
	}
	if err := st.client.Del(ctx, redisPendingKey(s)).Err(); err != nil {
		return nil, fmt.Errorf("clear pending index: %w", err)
	}
	return s, nil
}

// DeleteExpired is a no-op for Redis: key TTLs evict sessions after expiry
// plus the retention grace.
func (st *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
