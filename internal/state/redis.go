package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/spotlink/internal/shared"
)

// RedisStore implements [Store] on redis so every server instance sees the same entries.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed store from a URL or an address and pings it.
func NewRedis(cfg shared.StateConfig) (*RedisStore, error) {
	var opts *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %v", shared.ErrInvalidConfig, err)
		}
		opts = parsed
	} else {
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("%w: redis address required", shared.ErrMissingConfig)
		}
		opts = &redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "spotlink:state:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisStore{client: client, ttl: ttl, prefix: prefix}, nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// Put maps token to deviceID with SET EX. A non-positive ttl uses the store default.
func (s *RedisStore) Put(ctx context.Context, token, deviceID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, s.key(token), deviceID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	return nil
}

// Resolve returns the device id for token without removing the entry.
func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	deviceID, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve state: %w", err)
	}
	return deviceID, nil
}

// Ping checks connectivity, used by readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
