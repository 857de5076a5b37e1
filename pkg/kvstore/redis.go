package kvstore

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

const defaultRedisPrefix = "landingbeacon:"

type redisStore struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedis connects to redis and verifies the connection with a ping.
func NewRedis(cfg *RedisConfig) (Store, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "redis.new", "redis configuration missing")
	}
	if cfg.Addr == "" {
		return nil, errors.New(errors.KindConfig, "redis.new", "redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.KindStorage, "redis.new", "redis ping failed", err)
	}

	s := NewRedisWithClient(client, cfg.Prefix).(*redisStore)
	s.owned = true
	return s, nil
}

// NewRedisWithClient wraps an existing client. Close leaves the client open.
func NewRedisWithClient(client *redis.Client, prefix string) Store {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) key(k string) string {
	return s.prefix + k
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.KindStorage, "redis.get", "read key", err)
	}
	return v, true, nil
}

// Set writes without expiry: persisted SDK state outlives sessions the same
// way browser-local storage does.
func (s *redisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "redis.set", "write key", err)
	}
	return nil
}

func (s *redisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "redis.remove", "delete key", err)
	}
	return nil
}

func (s *redisStore) Close(context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
