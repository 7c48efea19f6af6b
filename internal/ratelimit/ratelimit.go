// Package ratelimit implements the sliding-window per-tenant rate limiter
// guarding request volume, with three independently-configured categories
// (general, query, upload).
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"manifold/internal/config"
	"manifold/internal/kv"
)

// Category names one of the three rate-limited request classes.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryQuery   Category = "query"
	CategoryUpload  Category = "upload"
)

// Result reports the outcome of a rate-limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter implements a Redis sorted-set sliding window: each request adds a
// uniquely-keyed member scored by its arrival time; ZREMRANGEBYSCORE evicts
// everything older than the window before counting.
type Limiter struct {
	store        *kv.RedisStore
	window       time.Duration
	defaultLimit int
	categories   map[string]int
}

// New builds a Limiter from RateLimitConfig. A nil store degrades every
// Allow call to always-allow.
func New(cfg config.RateLimitConfig, store *kv.RedisStore) *Limiter {
	window := time.Duration(cfg.WindowSecond) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, window: window, defaultLimit: cfg.DefaultLimit, categories: cfg.Categories}
}

func (l *Limiter) limitFor(category Category) int {
	if l.categories != nil {
		if n, ok := l.categories[string(category)]; ok && n > 0 {
			return n
		}
	}
	return l.defaultLimit
}

// Allow checks and records one request for tenantID under category. On
// rejection, Result.RetryAfter reports how long until the oldest request in
// the window expires and a slot frees up.
func (l *Limiter) Allow(ctx context.Context, tenantID string, category Category) (Result, error) {
	limit := l.limitFor(category)
	if l == nil || l.store == nil || limit <= 0 {
		return Result{Allowed: true, Limit: limit}, nil
	}
	key := fmt.Sprintf("ratelimit:%s:%s", tenantID, category)
	now := time.Now()
	windowFloor := now.Add(-l.window)

	if err := l.store.ZRemRangeByScore(ctx, key, "-inf", formatScore(windowFloor)); err != nil {
		return Result{}, fmt.Errorf("ratelimit evict expired: %w", err)
	}
	count, err := l.store.ZCard(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit count: %w", err)
	}
	if count >= int64(limit) {
		// oldest + window - now; the full window when the oldest score is unavailable
		retryAfter := l.window
		oldest := redis.NewScript(`local r = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES') return r[2]`)
		if v, err := l.store.EvalSHA(ctx, oldest, []string{key}); err == nil {
			if s, ok := v.(string); ok {
				if ms, err := strconv.ParseFloat(s, 64); err == nil {
					retryAfter = time.UnixMilli(int64(ms)).Add(l.window).Sub(now)
				}
			}
		}
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: retryAfter,
		}, nil
	}
	member := uuid.NewString()
	if err := l.store.ZAdd(ctx, key, float64(now.UnixMilli()), member); err != nil {
		return Result{}, fmt.Errorf("ratelimit record: %w", err)
	}
	_ = l.store.Expire(ctx, key, l.window)
	remaining := int(int64(limit) - count - 1)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Limit: limit, Remaining: remaining}, nil
}

func formatScore(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}
