package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/family-session/internal/config"
)

const redisKeyPrefix = "session:credential:"

// RedisStore persists credentials in Redis under a fixed key namespace.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using the provided configuration.
func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &RedisStore{client: client}
}

// Close closes the client.
func (s *RedisStore) Close() {
	if s != nil && s.client != nil {
		_ = s.client.Close()
	}
}

// Save stores the value for the kind.
func (s *RedisStore) Save(ctx context.Context, kind Kind, value string) error {
	return s.client.Set(ctx, redisKey(kind), value, 0).Err()
}

// Load returns the stored value and whether it was present.
func (s *RedisStore) Load(ctx context.Context, kind Kind) (string, bool, error) {
	value, err := s.client.Get(ctx, redisKey(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Clear removes the given kinds in a single DEL.
func (s *RedisStore) Clear(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	keys := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		keys = append(keys, redisKey(kind))
	}
	return s.client.Del(ctx, keys...).Err()
}

// ClearAll removes every enumerated kind in a single DEL, so keys written by
// an older schema are still covered as long as the kind remains enumerated.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	return s.Clear(ctx, AllKinds()...)
}

func redisKey(kind Kind) string {
	return redisKeyPrefix + string(kind)
}
