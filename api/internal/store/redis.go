package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"jlpt-snap/api/internal/settings"
)

const DefaultRedisPrefix = "jlpt-app-settings:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RedisSettings struct {
	client   *redis.Client
	prefix   string
	defaults settings.Settings
}

// NewRedisSettings connects and pings before returning.
func NewRedisSettings(ctx context.Context, cfg RedisConfig, defaults settings.Settings) (*RedisSettings, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSettings{client: client, prefix: prefix, defaults: defaults}, nil
}

func (r *RedisSettings) key(k string) string { return r.prefix + k }

func (r *RedisSettings) Load(ctx context.Context, key string) (settings.Settings, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return r.defaults, nil
	}
	if err != nil {
		return r.defaults, fmt.Errorf("redis get: %w", err)
	}
	s, err := decode(b, r.defaults)
	if err != nil {
		if derr := r.Delete(ctx, key); derr != nil {
			return r.defaults, derr
		}
		return r.defaults, nil
	}
	return s, nil
}

func (r *RedisSettings) Save(ctx context.Context, key string, s settings.Settings) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	// settings never expire
	return r.client.Set(ctx, r.key(key), b, 0).Err()
}

func (r *RedisSettings) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisSettings) Close() error {
	return r.client.Close()
}
