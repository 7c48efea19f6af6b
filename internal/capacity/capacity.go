// Package capacity implements the capacity limiter: a bounded set of
// in-flight-LLM-call slots, partitioned by priority class
// (chat/ingestion/communities) with reserved headroom for interactive chat
// traffic. Leases are counted per tenant: each tenant has its own pool of
// TotalSlots, and no pool is shared across tenants.
package capacity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"manifold/internal/config"
	"manifold/internal/kv"
)

// Class is a priority class competing for capacity slots.
type Class string

const (
	ClassChat        Class = "chat"
	ClassIngestion   Class = "ingestion"
	ClassCommunities Class = "communities"
)

// Lease represents one admitted in-flight call. Release must be called
// exactly once to free the slot.
type Lease struct {
	id      string
	class   Class
	limiter *Limiter
}

// admitScript atomically checks the global and per-class sorted-set
// cardinalities against their limits and, if both have headroom, adds the
// new member. Expressed as a Lua script (go-redis's redis.NewScript, run
// via EVALSHA with transparent fallback to EVAL+cache on NOSCRIPT) so the
// check-then-add is race-free across concurrent callers, rather than the
// read-then-write race a plain ZCARD+ZADD pair would have.
var admitScript = redis.NewScript(`
local global_key = KEYS[1]
local class_key = KEYS[2]
local member = ARGV[1]
local score = tonumber(ARGV[2])
local global_limit = tonumber(ARGV[3])
local class_limit = tonumber(ARGV[4])
local window_floor = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', global_key, '-inf', window_floor)
redis.call('ZREMRANGEBYSCORE', class_key, '-inf', window_floor)

local global_count = redis.call('ZCARD', global_key)
local class_count = redis.call('ZCARD', class_key)

if global_count >= global_limit then
	return 0
end
if class_count >= class_limit then
	return 0
end

redis.call('ZADD', global_key, score, member)
redis.call('ZADD', class_key, score, member)
return 1
`)

// Limiter admits and tracks leases across priority classes.
type Limiter struct {
	store            *kv.RedisStore
	totalSlots       int
	chatReserved     int
	ingestionShare   int
	communitiesShare int
	leaseTimeout     time.Duration
}

// New builds a Limiter from CapacityConfig. A nil store degrades every
// Acquire call to always-admit, matching the in-process fallback the
// donor uses when optional infrastructure (e.g. Redis) isn't configured.
func New(cfg config.CapacityConfig, store *kv.RedisStore) *Limiter {
	timeout := time.Duration(cfg.LeaseTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Limiter{
		store:            store,
		totalSlots:       cfg.TotalSlots,
		chatReserved:     cfg.ChatReserved,
		ingestionShare:   cfg.IngestionShare,
		communitiesShare: cfg.CommunitiesShare,
		leaseTimeout:     timeout,
	}
}

func (l *Limiter) classLimit(class Class) int {
	switch class {
	case ClassChat:
		// Chat may use its reservation plus any slack above the other two
		// classes' shares.
		slack := l.totalSlots - l.chatReserved - l.ingestionShare - l.communitiesShare
		if slack < 0 {
			slack = 0
		}
		if l.chatReserved > 0 {
			return l.chatReserved + slack
		}
		return l.totalSlots
	case ClassIngestion:
		return l.ingestionShare
	case ClassCommunities:
		return l.communitiesShare
	default:
		return l.totalSlots
	}
}

// Acquire admits a lease for tenantID under class, or returns
// ErrCapacityExceeded when either the tenant-scoped global pool or the
// class-scoped pool is already saturated.
func (l *Limiter) Acquire(ctx context.Context, tenantID string, class Class, leaseID string) (*Lease, error) {
	if l == nil || l.store == nil {
		return &Lease{id: leaseID, class: class, limiter: l}, nil
	}
	now := time.Now()
	windowFloor := now.Add(-l.leaseTimeout).UnixMilli()
	globalKey := fmt.Sprintf("capacity:%s:global", tenantID)
	classKey := fmt.Sprintf("capacity:%s:class:%s", tenantID, class)

	res, err := l.store.EvalSHA(ctx, admitScript, []string{globalKey, classKey},
		leaseID, now.UnixMilli(), l.totalSlots, l.classLimit(class), windowFloor)
	if err != nil {
		return nil, fmt.Errorf("capacity admission script: %w", err)
	}
	admitted, _ := res.(int64)
	if admitted != 1 {
		return nil, ErrCapacityExceeded{TenantID: tenantID, Class: class}
	}
	return &Lease{id: leaseID, class: class, limiter: l}, nil
}

// Release frees the slot held by lease, making room for the next caller.
func (l *Lease) Release(ctx context.Context, tenantID string) error {
	if l == nil || l.limiter == nil || l.limiter.store == nil {
		return nil
	}
	globalKey := fmt.Sprintf("capacity:%s:global", tenantID)
	classKey := fmt.Sprintf("capacity:%s:class:%s", tenantID, l.class)
	if err := l.limiter.store.ZRem(ctx, globalKey, l.id); err != nil {
		return err
	}
	return l.limiter.store.ZRem(ctx, classKey, l.id)
}

// InUse reports the current lease count for a tenant's class, for
// dashboards/metrics.
func (l *Limiter) InUse(ctx context.Context, tenantID string, class Class) (int64, error) {
	if l == nil || l.store == nil {
		return 0, nil
	}
	classKey := fmt.Sprintf("capacity:%s:class:%s", tenantID, class)
	return l.store.ZCard(ctx, classKey)
}

// ErrCapacityExceeded is returned when a class or the tenant's total pool
// has no free slots.
type ErrCapacityExceeded struct {
	TenantID string
	Class    Class
}

func (e ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity: tenant %s has no free %s slots", e.TenantID, e.Class)
}
