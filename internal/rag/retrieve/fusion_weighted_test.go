package retrieve

import (
	"testing"

	"manifold/internal/persistence/databases"
)

func TestFuseGraphAndCommunitySignals_RelabelsHitsInMultipleSourcesAsHybrid(t *testing.T) {
	fts := []databases.SearchResult{{ID: "shared", Score: 1}}
	vec := []databases.VectorResult{{ChunkID: "shared", Score: 1}}
	graph := []RankedItem{{ID: "graph-only"}}
	community := []RankedItem{{ID: "community-only"}}

	weights := ModeWeights{FullText: 0.3, Vector: 0.3, Graph: 0.2, Community: 0.2}
	out := FuseGraphAndCommunitySignals(fts, vec, graph, community, weights, RetrieveOptions{RRFK: 60})

	var shared, graphOnly *fusedCandidate
	for i := range out {
		switch out[i].ID {
		case "shared":
			shared = &out[i]
		case "graph-only":
			graphOnly = &out[i]
		}
	}
	if shared == nil || shared.Source != "hybrid" {
		t.Fatalf("expected shared id to be relabeled hybrid, got %#v", shared)
	}
	if graphOnly == nil || graphOnly.Source != "graph" {
		t.Fatalf("expected graph-only id to keep its source, got %#v", graphOnly)
	}
}

func TestFuseGraphAndCommunitySignals_ZeroWeightSourceContributesNothing(t *testing.T) {
	fts := []databases.SearchResult{{ID: "a", Score: 1}}
	weights := ModeWeights{FullText: 1, Vector: 0, Graph: 0, Community: 0}
	out := FuseGraphAndCommunitySignals(fts, nil, nil, nil, weights, RetrieveOptions{RRFK: 60})
	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("expected only the fulltext hit, got %#v", out)
	}
}
