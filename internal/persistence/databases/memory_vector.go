package databases

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryVector is an in-process VectorStore used by tests and by the
// "memory" backend configuration; it never touches the network.
type memoryVector struct {
	mu     sync.RWMutex
	points map[string]VectorPoint // keyed by chunk id
}

func NewMemoryVector() VectorStore { return &memoryVector{points: make(map[string]VectorPoint)} }

func (m *memoryVector) Upsert(_ context.Context, points []VectorPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		cp := p
		cp.Vector = append([]float32(nil), p.Vector...)
		cp.Metadata = copyMap(p.Metadata)
		m.points[p.ChunkID] = cp
	}
	return nil
}

func (m *memoryVector) search(tenantID string, docIDs []string, query []float32, limit int, threshold float64) []VectorResult {
	qnorm := norm(query)
	docSet := map[string]bool{}
	for _, d := range docIDs {
		docSet[d] = true
	}
	out := make([]VectorResult, 0, len(m.points))
	for _, p := range m.points {
		if p.TenantID != tenantID {
			continue
		}
		if len(docSet) > 0 && !docSet[p.DocumentID] {
			continue
		}
		s := cosine(query, p.Vector, qnorm)
		if s < threshold {
			continue
		}
		out = append(out, VectorResult{
			ChunkID: p.ChunkID, DocumentID: p.DocumentID, TenantID: p.TenantID,
			Score: s, Content: p.Content, Metadata: copyMap(p.Metadata),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memoryVector) Search(_ context.Context, sq SearchQuery) ([]VectorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := sq.Limit
	if limit <= 0 {
		limit = 10
	}
	return m.search(sq.TenantID, sq.DocumentIDs, sq.Vector, limit, sq.ScoreThreshold), nil
}

func (m *memoryVector) HybridSearch(ctx context.Context, sq SearchQuery) ([]VectorResult, error) {
	return m.Search(ctx, sq)
}

func (m *memoryVector) GetChunks(_ context.Context, tenantID string, chunkIDs []string) ([]VectorResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]VectorResult, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		p, ok := m.points[id]
		if !ok || p.TenantID != tenantID {
			continue
		}
		out = append(out, VectorResult{ChunkID: p.ChunkID, DocumentID: p.DocumentID, TenantID: p.TenantID, Content: p.Content, Metadata: copyMap(p.Metadata)})
	}
	return out, nil
}

func (m *memoryVector) DeleteByDocument(_ context.Context, tenantID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.TenantID == tenantID && p.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *memoryVector) DeleteByTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.TenantID == tenantID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *memoryVector) Close() error { return nil }

func norm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
