package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"booking-scheduler/internal/apperr"
)

const (
	statePrefix = "calendar:oauth_state:"
	StateTTL    = 10 * time.Minute
)

// RedisStateStore keeps OAuth state values in Redis until they are used once
// or expire.
type RedisStateStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStateStore(rdb redis.Cmdable, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = StateTTL
	}
	return &RedisStateStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStateStore) Issue(ctx context.Context, providerID string) (string, error) {
	state := uuid.NewString()
	if err := s.rdb.Set(ctx, statePrefix+state, providerID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("calendar: store oauth state: %w", err)
	}
	return state, nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", apperr.Invalid("missing oauth state")
	}
	providerID, err := s.rdb.GetDel(ctx, statePrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperr.Invalid("unknown or expired oauth state")
	}
	if err != nil {
		return "", fmt.Errorf("calendar: read oauth state: %w", err)
	}
	return providerID, nil
}
