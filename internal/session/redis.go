package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-decision/internal/common/database"
	"loan-decision/internal/models"

	"github.com/google/uuid"
)

const keyPrefix = "loan:session:"

// RedisStore keeps form state as JSON in Redis so several server replicas
// can share sessions. Locks are SETNX keys with their own TTL.
type RedisStore struct {
	client  *database.RedisClient
	ttl     time.Duration
	lockTTL time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *database.RedisClient, ttl, lockTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, lockTTL: lockTTL}
}

func stateKey(id string) string { return keyPrefix + id }
func lockKey(id string) string  { return keyPrefix + id + ":lock" }

func (s *RedisStore) Get(ctx context.Context, id string) (*models.FormState, error) {
	data, err := s.client.Get(ctx, stateKey(id))
	if errors.Is(err, database.ErrNil) {
		return models.NewFormState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var state models.FormState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if state.Application == nil {
		state.Application = models.Application{}
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, state *models.FormState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := s.client.Set(ctx, stateKey(id), data, s.ttl); err != nil {
		return fmt.Errorf("put session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, stateKey(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) TryLock(ctx context.Context, id string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey(id), token, s.lockTTL)
	if err != nil {
		return "", false, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (s *RedisStore) Refresh(ctx context.Context, id, token string) (bool, error) {
	if s.lockTTL <= 0 {
		data, err := s.client.Get(ctx, lockKey(id))
		if errors.Is(err, database.ErrNil) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("refresh lock %s: %w", id, err)
		}
		return string(data) == token, nil
	}
	ok, err := s.client.ExpireIfEqual(ctx, lockKey(id), token, s.lockTTL)
	if err != nil {
		return false, fmt.Errorf("refresh lock %s: %w", id, err)
	}
	return ok, nil
}

func (s *RedisStore) Locked(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.Exists(ctx, lockKey(id))
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", id, err)
	}
	return ok, nil
}

func (s *RedisStore) LockTTL() time.Duration { return s.lockTTL }

func (s *RedisStore) Unlock(ctx context.Context, id, token string) error {
	if _, err := s.client.DelIfEqual(ctx, lockKey(id), token); err != nil {
		return fmt.Errorf("unlock session %s: %w", id, err)
	}
	return nil
}
