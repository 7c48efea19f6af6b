// Package kv provides the shared key-value and sorted-set substrate used by
// the capacity limiter, rate limiter, result/embedding caches, and the
// document state event bus. It wraps a single Redis connection so those
// components share one client and one failure mode instead of each dialing
// their own.
package kv

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the KV port that RedisStore implements; the
// capacity/ratelimit/cache/docstate packages hold a *RedisStore directly.
// A nil *RedisStore is safe to call (all methods degrade to no-ops
// returning zero values), matching the donor's nil-receiver-safe cache
// convention.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ScanDel(ctx context.Context, pattern string) error

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max string) error
	ZCard(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error)

	EvalSHA(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)

	Close() error
}

// Config dials a single Redis connection shared across the ports above.
type Config struct {
	DSN                   string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// RedisStore is the Redis-backed Store implementation, generalizing the
// donor's RedisSkillsCache (Get/Set/Scan/Del over redis.UniversalClient) to
// the sorted-set and pub/sub operations the capacity/rate-limit/event-bus
// components need.
type RedisStore struct {
	client redis.UniversalClient
}

// New dials Redis from a DSN (redis://... or host:port) when non-empty.
// Returns a nil *RedisStore, nil error when dsn is empty so callers can
// treat an unconfigured store as an always-degrade no-op, matching the
// donor's "Enabled" guard pattern.
func New(cfg Config) (*RedisStore, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		opts = &redis.Options{Addr: cfg.DSN, Password: cfg.Password, DB: cfg.DB}
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, nil
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if s == nil || s.client == nil || len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// ScanDel removes every key matching pattern, mirroring the donor's
// Invalidate (Scan+Del) idiom.
func (s *RedisStore) ScanDel(ctx context.Context, pattern string) error {
	if s == nil || s.client == nil {
		return nil
	}
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if s == nil || s.client == nil || len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.ZRemRangeByScore(ctx, key, min, max).Err()
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, nil
	}
	return s.client.ZCard(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a channel of message payloads and an unsubscribe func.
// Callers must invoke the returned func to release the underlying
// connection once done.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func() error) {
	if s == nil || s.client == nil {
		ch := make(chan string)
		close(ch)
		return ch, func() error { return nil }
	}
	sub := s.client.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- msg.Payload
		}
	}()
	return out, sub.Close
}

// EvalSHA executes a cached Lua script (loading it on first use via
// redis.Script's Run, which transparently falls back from EVALSHA to
// EVAL+caching on NOSCRIPT). Used by the capacity limiter's atomic
// admission check.
func (s *RedisStore) EvalSHA(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	return script.Run(ctx, s.client, keys, args...).Result()
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
