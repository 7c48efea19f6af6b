package graphbuild

import (
	"context"
	"strings"
	"testing"

	"manifold/internal/persistence/databases"
)

func TestBuildSimilarityEdges_LinksTopKNeighbors(t *testing.T) {
	ctx := context.Background()
	g := databases.NewMemoryGraph()

	chunks := []ChunkEmbedding{
		{ChunkID: "c1", Vector: []float32{1, 0, 0}},
		{ChunkID: "c2", Vector: []float32{0.99, 0.01, 0}},
		{ChunkID: "c3", Vector: []float32{0, 1, 0}},
	}
	if err := BuildSimilarityEdges(ctx, g, "tenant-a", chunks, SimilarityOptions{TopK: 1, MinScore: 0.5}); err != nil {
		t.Fatalf("build similarity edges: %v", err)
	}
	neighbors, err := g.Neighbors(ctx, "tenant-a", "c1", nil, 10)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) == 0 || neighbors[0].Name != "c2" {
		t.Fatalf("expected c1's closest similar chunk to be c2, got %+v", neighbors)
	}
}

func TestBuildSimilarityEdges_NoOpBelowMinScore(t *testing.T) {
	ctx := context.Background()
	g := databases.NewMemoryGraph()
	chunks := []ChunkEmbedding{
		{ChunkID: "c1", Vector: []float32{1, 0}},
		{ChunkID: "c2", Vector: []float32{0, 1}},
	}
	if err := BuildSimilarityEdges(ctx, g, "tenant-a", chunks, SimilarityOptions{TopK: 1, MinScore: 0.9}); err != nil {
		t.Fatalf("build similarity edges: %v", err)
	}
	neighbors, err := g.Neighbors(ctx, "tenant-a", "c1", nil, 10)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 0 {
		t.Fatalf("expected no edges below MinScore, got %+v", neighbors)
	}
}

func TestMergeDuplicateEntities_CollapsesGroupAndMarksCommunityStale(t *testing.T) {
	ctx := context.Background()
	g := databases.NewMemoryGraph()

	for _, e := range []databases.GraphEntity{
		{TenantID: "tenant-a", Name: "OpenAI", Community: "community-1"},
		{TenantID: "tenant-a", Name: "openai", Community: "community-1"},
		{TenantID: "tenant-a", Name: "OpenAI Inc", Community: "community-1"},
	} {
		if err := g.MergeEntity(ctx, e); err != nil {
			t.Fatalf("seed entity: %v", err)
		}
	}

	entities := []ExtractedEntity{
		{Name: "OpenAI", ChunkID: "c1"},
		{Name: "OpenAI", ChunkID: "c2"},
		{Name: "openai", ChunkID: "c3"},
		{Name: "OpenAI Inc", ChunkID: "c4"},
	}
	canonical := func(e ExtractedEntity) string { return strings.ToLower(e.Name) }

	rec := &staleRecorder{GraphStore: g}
	result, err := MergeDuplicateEntities(ctx, rec, "tenant-a", entities, canonical)
	if err != nil {
		t.Fatalf("merge duplicates: %v", err)
	}
	if result.GroupsCollapsed != 1 {
		t.Fatalf("expected 1 group collapsed, got %d", result.GroupsCollapsed)
	}
	if result.EntitiesMerged != 1 {
		t.Fatalf("expected 1 entity merged away, got %d", result.EntitiesMerged)
	}
	if len(rec.marked) != 1 || rec.marked[0] != "OpenAI" {
		t.Fatalf("expected OpenAI's community marked stale, got %v", rec.marked)
	}
}

// staleRecorder records the entity names passed to MarkCommunityStale.
type staleRecorder struct {
	databases.GraphStore
	marked []string
}

func (s *staleRecorder) MarkCommunityStale(ctx context.Context, tenantID string, names []string) error {
	s.marked = append(s.marked, names...)
	return s.GraphStore.MarkCommunityStale(ctx, tenantID, names)
}
