package deviceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	devicePrefix = "mercury:device:"
	userPrefix   = "mercury:user_code:"
)

// RedisStore keeps device codes in Redis so several server instances can
// share them.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Save(ctx context.Context, code *DeviceCode, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("code has already expired")
	}
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshaling device code: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, devicePrefix+code.DeviceCode, data, ttl)
	pipe.Set(ctx, userPrefix+code.UserCode, code.DeviceCode, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving device code: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, deviceCode string) (*DeviceCode, error) {
	data, err := s.client.Get(ctx, devicePrefix+deviceCode).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting device code: %w", err)
	}
	var code DeviceCode
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, fmt.Errorf("unmarshaling device code: %w", err)
	}
	return &code, nil
}

func (s *RedisStore) GetByUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	deviceCode, err := s.client.Get(ctx, userPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user code reference: %w", err)
	}
	return s.Get(ctx, deviceCode)
}

func (s *RedisStore) Delete(ctx context.Context, code *DeviceCode) (bool, error) {
	pipe := s.client.TxPipeline()
	deleted := pipe.Del(ctx, devicePrefix+code.DeviceCode)
	pipe.Del(ctx, userPrefix+code.UserCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("deleting device code: %w", err)
	}
	return deleted.Val() == 1, nil
}
