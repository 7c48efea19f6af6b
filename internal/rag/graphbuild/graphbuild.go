// Package graphbuild orchestrates the graph-writing side of ingestion on
// top of the GraphStore port: intra-document SIMILAR_TO edges between
// chunk embeddings, transactional entity merging when extraction produces
// duplicate surface forms, and community-stale marking so a later
// community-detection pass only recomputes what actually changed.
package graphbuild

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"manifold/internal/persistence/databases"
)

// ChunkEmbedding pairs a chunk ID with its dense vector, the unit this
// package reasons about for intra-document similarity.
type ChunkEmbedding struct {
	ChunkID string
	Vector  []float32
}

// SimilarityOptions bounds the SIMILAR_TO edge fan-out.
type SimilarityOptions struct {
	// TopK neighbors recorded per chunk.
	TopK int
	// MinScore below which a pair is not linked.
	MinScore float64
	// Concurrency bounds the number of parallel graph writes (per §5,
	// ingestion per-chunk graph writes are capped).
	Concurrency int
}

// BuildSimilarityEdges computes pairwise cosine similarity across a
// document's chunk embeddings and writes the top-K strongest edges per
// chunk as SIMILAR_TO relations, fanning writes out over a bounded
// errgroup so a large document doesn't serialize one write at a time.
func BuildSimilarityEdges(ctx context.Context, g databases.GraphStore, tenantID string, chunks []ChunkEmbedding, opt SimilarityOptions) error {
	if g == nil || len(chunks) < 2 {
		return nil
	}
	topK := opt.TopK
	if topK <= 0 {
		topK = 5
	}
	concurrency := opt.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	norms := make([]float64, len(chunks))
	for i, c := range chunks {
		norms[i] = vectorNorm(c.Vector)
	}

	type scoredPair struct {
		peer  string
		score float64
	}
	neighbors := make([][]scoredPair, len(chunks))
	for i := range chunks {
		for j := range chunks {
			if i == j {
				continue
			}
			score := cosineSim(chunks[i].Vector, chunks[j].Vector, norms[i], norms[j])
			if score < opt.MinScore {
				continue
			}
			neighbors[i] = append(neighbors[i], scoredPair{peer: chunks[j].ChunkID, score: score})
		}
		sort.Slice(neighbors[i], func(a, b int) bool { return neighbors[i][a].score > neighbors[i][b].score })
		if len(neighbors[i]) > topK {
			neighbors[i] = neighbors[i][:topK]
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(concurrency)
	for i, peers := range neighbors {
		chunkID := chunks[i].ChunkID
		for rank, p := range peers {
			chunkID, peer, score, rank := chunkID, p.peer, p.score, rank
			grp.Go(func() error {
				return g.MergeSimilarity(gctx, tenantID, chunkID, peer, score, rank+1)
			})
		}
	}
	return grp.Wait()
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosineSim(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

// ExtractedEntity is one surface form an extractor attached to a chunk.
type ExtractedEntity struct {
	Name        string
	Type        string
	Description string
	ChunkID     string
}

// MergeResult summarizes a merge pass's side effects for logging/metrics.
type MergeResult struct {
	EntitiesMerged  int
	GroupsCollapsed int
}

// MergeDuplicateEntities groups extracted entities by a caller-supplied
// canonicalization key (e.g. lowercased name, or an embedding-cluster ID),
// picks the most-mentioned surface form in each group as the canonical
// target, and merges the rest into it via the GraphStore's transactional
// MergeEntities primitive. Every write goes through the store's own
// transaction, so a merge either lands completely or not at all.
func MergeDuplicateEntities(ctx context.Context, g databases.GraphStore, tenantID string, entities []ExtractedEntity, canonicalKey func(ExtractedEntity) string) (MergeResult, error) {
	if g == nil || len(entities) == 0 {
		return MergeResult{}, nil
	}
	groups := make(map[string][]ExtractedEntity)
	order := make([]string, 0)
	for _, e := range entities {
		key := canonicalKey(e)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	var result MergeResult
	var touched []string
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		counts := make(map[string]int)
		for _, e := range group {
			counts[e.Name]++
		}
		target := group[0].Name
		best := 0
		for name, n := range counts {
			if n > best {
				target, best = name, n
			}
		}
		sources := make([]string, 0, len(counts))
		for name := range counts {
			sources = append(sources, name)
		}
		if err := g.MergeEntities(ctx, tenantID, sources, target); err != nil {
			return result, err
		}
		result.GroupsCollapsed++
		result.EntitiesMerged += len(sources) - 1
		touched = append(touched, target)
	}
	if len(touched) > 0 {
		if err := g.MarkCommunityStale(ctx, tenantID, touched); err != nil {
			return result, err
		}
	}
	return result, nil
}
