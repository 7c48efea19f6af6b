package databases

import (
	"context"
	"sort"
	"sync"
)

type tenantKey struct{ tenantID, name string }

type memRelation struct {
	source, target, relType, description string
	weight                                float64
}

// memoryGraph is an in-process GraphStore used by tests and the "memory"
// backend configuration.
type memoryGraph struct {
	mu           sync.RWMutex
	entities     map[tenantKey]GraphEntity
	relations    map[string][]memRelation // tenantID -> relations
	staleCommunities map[tenantKey]bool
}

func NewMemoryGraph() GraphStore {
	return &memoryGraph{
		entities:  make(map[tenantKey]GraphEntity),
		relations: make(map[string][]memRelation),
		staleCommunities: make(map[tenantKey]bool),
	}
}

func (m *memoryGraph) UpsertDocument(_ context.Context, tenantID, documentID, filename string) error {
	return nil
}

func (m *memoryGraph) UpsertChunk(_ context.Context, tenantID, documentID, chunkID string, index int) error {
	return nil
}

func (m *memoryGraph) MergeEntity(_ context.Context, e GraphEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantKey{e.TenantID, e.Name}
	if existing, ok := m.entities[key]; ok {
		if existing.Type == "" {
			existing.Type = e.Type
		}
		if existing.Description == "" {
			existing.Description = e.Description
		}
		m.entities[key] = existing
		return nil
	}
	m.entities[key] = e
	return nil
}

func (m *memoryGraph) MergeMention(_ context.Context, tenantID, chunkID, entityName string) error {
	return nil
}

func (m *memoryGraph) mergeRelation(r GraphRelation) {
	rels := m.relations[r.TenantID]
	for i, existing := range rels {
		if existing.source == r.Source && existing.target == r.Target && existing.relType == r.Type {
			rels[i].weight = r.Weight
			if r.Description != "" {
				rels[i].description = r.Description
			}
			return
		}
	}
	m.relations[r.TenantID] = append(rels, memRelation{
		source: r.Source, target: r.Target, relType: r.Type, description: r.Description, weight: r.Weight,
	})
}

func (m *memoryGraph) MergeRelation(_ context.Context, r GraphRelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeRelation(r)
	return nil
}

func (m *memoryGraph) MergeSimilarity(_ context.Context, tenantID, chunkA, chunkB string, score float64, rank int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeRelation(GraphRelation{TenantID: tenantID, Source: chunkA, Target: chunkB, Type: "SIMILAR_TO", Weight: score})
	return nil
}

func (m *memoryGraph) MergeCoOccurs(_ context.Context, tenantID, entityA, entityB string, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeRelation(GraphRelation{TenantID: tenantID, Source: entityA, Target: entityB, Type: "CO_OCCURS", Weight: weight})
	return nil
}

func (m *memoryGraph) Neighbors(_ context.Context, tenantID, entityName string, excludeRelTypes []string, limit int) ([]GraphNeighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	excluded := map[string]bool{}
	for _, t := range excludeRelTypes {
		excluded[t] = true
	}
	out := make([]GraphNeighbor, 0)
	for _, r := range m.relations[tenantID] {
		if r.source != entityName || excluded[r.relType] {
			continue
		}
		entType := ""
		if e, ok := m.entities[tenantKey{tenantID, r.target}]; ok {
			entType = e.Type
		}
		out = append(out, GraphNeighbor{Name: r.target, RelType: r.relType, Weight: r.weight, EntityType: entType})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryGraph) MergeEntities(_ context.Context, tenantID string, sources []string, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	srcSet := map[string]bool{}
	for _, s := range sources {
		srcSet[s] = true
	}
	targetEntity := m.entities[tenantKey{tenantID, target}]
	for _, s := range sources {
		if s == target {
			continue
		}
		key := tenantKey{tenantID, s}
		if src, ok := m.entities[key]; ok {
			targetEntity.Aliases = append(targetEntity.Aliases, s)
			targetEntity.Aliases = append(targetEntity.Aliases, src.Aliases...)
			if src.Description != "" {
				if targetEntity.Description != "" {
					targetEntity.Description += "\n"
				}
				targetEntity.Description += src.Description
			}
			delete(m.entities, key)
		}
	}
	targetEntity.Name = target
	targetEntity.TenantID = tenantID
	m.entities[tenantKey{tenantID, target}] = targetEntity

	rels := m.relations[tenantID]
	for i := range rels {
		if srcSet[rels[i].source] && rels[i].source != target {
			rels[i].source = target
		}
		if srcSet[rels[i].target] && rels[i].target != target {
			rels[i].target = target
		}
	}
	m.relations[tenantID] = rels
	return nil
}

func (m *memoryGraph) MarkCommunityStale(_ context.Context, tenantID string, entityNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range entityNames {
		key := tenantKey{tenantID, name}
		if e, ok := m.entities[key]; ok && e.Community != "" {
			m.staleCommunities[tenantKey{tenantID, e.Community}] = true
		}
	}
	return nil
}

func (m *memoryGraph) Close() error { return nil }
