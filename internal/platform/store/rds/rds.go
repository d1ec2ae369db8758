// Package rds provides a thin redis client for the activity cache
package rds

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the redis client
type Config struct {
	Addr string
	DB   int
}

// RDS wraps a redis client behind the store KV seam
type RDS struct {
	cli *redis.Client
}

// Open dials redis and verifies connectivity
func Open(ctx context.Context, cfg Config) (*RDS, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return &RDS{cli: cli}, nil
}

// Get returns the value and true, or ("", false, nil) on a miss
func (r *RDS) Get(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.cli == nil {
		return "", false, errors.New("rds: nil client")
	}
	v, err := r.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes key=value with the given TTL (0 means no expiry)
func (r *RDS) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if r == nil || r.cli == nil {
		return errors.New("rds: nil client")
	}
	return r.cli.Set(ctx, key, value, ttl).Err()
}

// Del removes keys; missing keys are not an error
func (r *RDS) Del(ctx context.Context, keys ...string) error {
	if r == nil || r.cli == nil {
		return errors.New("rds: nil client")
	}
	if len(keys) == 0 {
		return nil
	}
	return r.cli.Del(ctx, keys...).Err()
}

// Ping verifies connectivity
func (r *RDS) Ping(ctx context.Context) error {
	if r == nil || r.cli == nil {
		return errors.New("rds: nil client")
	}
	return r.cli.Ping(ctx).Err()
}

// Close releases the underlying pool
func (r *RDS) Close() error {
	if r == nil || r.cli == nil {
		return nil
	}
	return r.cli.Close()
}
