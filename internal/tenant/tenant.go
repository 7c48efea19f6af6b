// Package tenant implements per-tenant tuning configuration: the
// LRU-cached lookup that backs every hot-path read, a weight-update
// mutation that audits every change through the event bus, and an offline
// analysis pass that turns recorded feedback into weight suggestions.
package tenant

import (
	"container/list"
	"context"
	"sync"
	"time"

	"manifold/internal/config"
	"manifold/internal/eventbus"
)

// Config is one tenant's tuning state, seeded from TenancyConfig defaults
// the first time the tenant is seen.
type Config struct {
	TenantID               string
	RRFK                   int
	SimilarityEdgeThreshold float64
	VectorWeight           float64
	GraphWeight            float64
	UpdatedAt              time.Time
}

// Repository persists tenant tuning config, e.g. a pgx-backed table. The
// LRU in front of it exists purely to keep hot-path reads off the
// database.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Config, bool, error)
	Upsert(ctx context.Context, cfg Config) error
}

// entry is the value stored in the LRU's backing map.
type entry struct {
	key   string
	value Config
}

// lru is a small mutex-guarded, doubly-linked-list LRU. The pack carries no
// pure LRU library in the chosen teacher's require block, so this ~60-line
// data structure is implemented directly rather than adapted from a
// third-party dependency.
type lru struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 256
	}
	return &lru{capacity: capacity, items: make(map[string]*list.Element), order: list.New()}
}

func (l *lru) get(key string) (Config, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[key]
	if !ok {
		return Config{}, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (l *lru) put(key string, value Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[key]; ok {
		el.Value.(*entry).value = value
		l.order.MoveToFront(el)
		return
	}
	el := l.order.PushFront(&entry{key: key, value: value})
	l.items[key] = el
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.items, oldest.Value.(*entry).key)
		}
	}
}

func (l *lru) invalidate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[key]; ok {
		l.order.Remove(el)
		delete(l.items, key)
	}
}

// AuditRow is appended to the event bus audit topic on every weight
// update, carrying the before/after state for compliance review.
type AuditRow struct {
	TenantID string    `json:"tenant_id"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Target   string    `json:"target"`
	Changes  Config    `json:"changes"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Manager resolves, caches, and mutates per-tenant tuning config.
type Manager struct {
	repo     Repository
	bus      *eventbus.Bus
	cache    *lru
	defaults config.TenancyConfig
}

// New builds a Manager. cacheSize bounds the in-memory LRU.
func New(repo Repository, bus *eventbus.Bus, defaults config.TenancyConfig, cacheSize int) *Manager {
	return &Manager{repo: repo, bus: bus, cache: newLRU(cacheSize), defaults: defaults}
}

// GetTenantConfig returns the tenant's tuning config, checking the LRU
// first and falling through to the repository (seeding defaults for a
// never-seen tenant) on a miss.
func (m *Manager) GetTenantConfig(ctx context.Context, tenantID string) (Config, error) {
	if cfg, ok := m.cache.get(tenantID); ok {
		return cfg, nil
	}
	cfg, found, err := m.repo.Get(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}
	if !found {
		cfg = Config{
			TenantID:               tenantID,
			RRFK:                   m.defaults.DefaultRRFK,
			SimilarityEdgeThreshold: m.defaults.DefaultSimilarityEdge,
			VectorWeight:           m.defaults.DefaultVectorWeight,
			GraphWeight:            m.defaults.DefaultGraphWeight,
			UpdatedAt:              time.Now().UTC(),
		}
		if err := m.repo.Upsert(ctx, cfg); err != nil {
			return Config{}, err
		}
	}
	m.cache.put(tenantID, cfg)
	return cfg, nil
}

// UpdateTenantWeights mutates the tenant's vector/graph fusion weights,
// invalidates the LRU entry, persists the change, and appends an audit
// row recording who changed what.
func (m *Manager) UpdateTenantWeights(ctx context.Context, actor, tenantID string, vectorWeight, graphWeight float64) error {
	cfg, err := m.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return err
	}
	cfg.VectorWeight = vectorWeight
	cfg.GraphWeight = graphWeight
	cfg.UpdatedAt = time.Now().UTC()
	if err := m.repo.Upsert(ctx, cfg); err != nil {
		return err
	}
	m.cache.invalidate(tenantID)
	if m.bus != nil {
		_ = m.bus.Publish(ctx, "audit", AuditRow{
			TenantID: tenantID, Actor: actor, Action: "update_weights", Target: "fusion_weights",
			Changes: cfg, RecordedAt: time.Now().UTC(),
		})
	}
	return nil
}

// FeedbackSample is one recorded retrieval outcome used as tuning signal:
// whether the result set was ultimately judged useful and which source
// (vector/graph) contributed the accepted answer.
type FeedbackSample struct {
	TenantID       string
	VectorAccepted bool
	GraphAccepted  bool
}

// TuningSuggestion is the outcome of analyzing a batch of feedback: a
// nudge to one tenant's fusion weights, to be applied via
// UpdateTenantWeights by the caller (kept as a pure function here so it is
// trivially testable without a repository).
type TuningSuggestion struct {
	TenantID     string
	VectorWeight float64
	GraphWeight  float64
}

// AnalyzeFeedbackForTuning buckets samples by tenant and nudges each
// tenant's weights toward whichever source was more often accepted,
// bounded to a modest adjustment per analysis pass so a single noisy batch
// cannot swing retrieval behavior.
func AnalyzeFeedbackForTuning(samples []FeedbackSample, current map[string]Config) []TuningSuggestion {
	type tally struct{ vector, graph, total int }
	byTenant := make(map[string]*tally)
	for _, s := range samples {
		t, ok := byTenant[s.TenantID]
		if !ok {
			t = &tally{}
			byTenant[s.TenantID] = t
		}
		t.total++
		if s.VectorAccepted {
			t.vector++
		}
		if s.GraphAccepted {
			t.graph++
		}
	}

	const step = 0.05
	suggestions := make([]TuningSuggestion, 0, len(byTenant))
	for tenantID, t := range byTenant {
		if t.total == 0 {
			continue
		}
		cfg := current[tenantID]
		vw, gw := cfg.VectorWeight, cfg.GraphWeight
		if vw == 0 && gw == 0 {
			vw, gw = 1, 1
		}
		vectorRate := float64(t.vector) / float64(t.total)
		graphRate := float64(t.graph) / float64(t.total)
		if vectorRate > graphRate {
			vw += step
		} else if graphRate > vectorRate {
			gw += step
		}
		suggestions = append(suggestions, TuningSuggestion{TenantID: tenantID, VectorWeight: vw, GraphWeight: gw})
	}
	return suggestions
}
