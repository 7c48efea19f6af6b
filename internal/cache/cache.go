// Package cache implements the two Redis-backed caches sitting in front of
// the expensive parts of the pipeline: an embedding cache keyed by content
// hash, and a retrieval result cache keyed by tenant+query+mode and
// invalidated by comparing against the tenant's last_update_ts, matching
// the donor's TTL-based Get/Set idiom plus a plain scalar staleness check.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"manifold/internal/config"
	"manifold/internal/kv"
)

// Cache fronts embeddings and retrieval results with a shared Redis store.
type Cache struct {
	store *kv.RedisStore
	ttl   time.Duration
}

// New builds a Cache from CacheConfig. A nil store degrades every Get to a
// miss and every Set to a no-op.
func New(cfg config.CacheConfig, store *kv.RedisStore) *Cache {
	ttl := time.Duration(cfg.TTLSecs) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{store: store, ttl: ttl}
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "cache:embed:" + hex.EncodeToString(sum[:])
}

// GetEmbedding returns a cached embedding vector for (model, text), if
// present.
func (c *Cache) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	val, ok, err := c.store.Get(ctx, embeddingKey(model, text))
	if err != nil || !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(val), &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// SetEmbedding caches an embedding vector for (model, text).
func (c *Cache) SetEmbedding(ctx context.Context, model, text string, vec []float32) error {
	if c == nil || c.store == nil {
		return nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, embeddingKey(model, text), string(data), c.ttl)
}

func resultKey(tenantID, query, mode string) string {
	sum := sha256.Sum256([]byte(query + "\x00" + mode))
	return fmt.Sprintf("cache:result:%s:%s", tenantID, hex.EncodeToString(sum[:]))
}

func tenantTimestampKey(tenantID string) string {
	return "cache:tenant_ts:" + tenantID
}

// CachedResult is a retrieval result snapshot with the tenant timestamp it
// was computed against, used to detect staleness without a separate
// invalidation sweep.
type CachedResult struct {
	Payload     json.RawMessage `json:"payload"`
	ComputedTS  int64           `json:"computed_ts"`
}

// GetResult returns a cached retrieval result for (tenantID, query, mode),
// but only if it was computed at or after the tenant's current
// last_update_ts — a plain scalar compare, matching the staleness design
// this component is grounded on. A stale hit is treated as a miss.
func (c *Cache) GetResult(ctx context.Context, tenantID, query, mode string) (json.RawMessage, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	val, ok, err := c.store.Get(ctx, resultKey(tenantID, query, mode))
	if err != nil || !ok {
		return nil, false
	}
	var cached CachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, false
	}
	currentTS, _ := c.TenantTimestamp(ctx, tenantID)
	if cached.ComputedTS < currentTS {
		return nil, false
	}
	return cached.Payload, true
}

// SetResult caches a retrieval result stamped with the tenant's current
// last_update_ts.
func (c *Cache) SetResult(ctx context.Context, tenantID, query, mode string, payload json.RawMessage) error {
	return c.SetResultTTL(ctx, tenantID, query, mode, payload, 0)
}

// SetResultTTL caches a retrieval result like SetResult but with an explicit
// TTL override, used by the degraded-mode circuit breaker to extend a
// result's lifetime past the default while the pipeline is shedding load.
// ttlOverride <= 0 falls back to the Cache's configured default.
func (c *Cache) SetResultTTL(ctx context.Context, tenantID, query, mode string, payload json.RawMessage, ttlOverride time.Duration) error {
	if c == nil || c.store == nil {
		return nil
	}
	ts, _ := c.TenantTimestamp(ctx, tenantID)
	data, err := json.Marshal(CachedResult{Payload: payload, ComputedTS: ts})
	if err != nil {
		return err
	}
	ttl := c.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	return c.store.Set(ctx, resultKey(tenantID, query, mode), string(data), ttl)
}

// TenantTimestamp returns the tenant's last_update_ts (unix millis),
// defaulting to 0 when never set.
func (c *Cache) TenantTimestamp(ctx context.Context, tenantID string) (int64, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	val, ok, err := c.store.Get(ctx, tenantTimestampKey(tenantID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var ts int64
	_, err = fmt.Sscanf(val, "%d", &ts)
	return ts, err
}

// TouchTenant bumps the tenant's last_update_ts to now, invalidating every
// result cached before this call on the next GetResult comparison.
func (c *Cache) TouchTenant(ctx context.Context, tenantID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Set(ctx, tenantTimestampKey(tenantID), fmt.Sprintf("%d", time.Now().UnixMilli()), 0)
}
