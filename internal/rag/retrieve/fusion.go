package retrieve

import (
	"math"
	"sort"
	"strings"

	"manifold/internal/persistence/databases"
)

// fusedCandidate is an internal structure used during fusion.
type fusedCandidate struct {
	ID         string
	DocID      string
	Source     string
	FtRank     int // 1-based; 0 if absent
	VecRank    int // 1-based; 0 if absent
	FtScore    float64
	VecScore   float64
	Fused      float64
	Snippet    string
	Text       string
	Metadata   map[string]string
	sourceHits int
}

// RankedItem is one candidate surfaced by a single ranked source ahead of
// fusion, normalized to the fields FuseWeightedRRF needs regardless of which
// backend (full-text, vector, graph, community synthesis) produced it.
type RankedItem struct {
	ID       string
	Snippet  string
	Text     string
	Metadata map[string]string
}

// RankedSource is one ranked list of candidates plus the fusion weight it
// contributes, matching the retrieval pipeline's
// `score(id) = Σ_source w_source / (k + rank_source(id))` contract. A named
// source lets a hit that appears in more than one list be relabeled
// "hybrid" at the end of fusion.
type RankedSource struct {
	Name   string
	Weight float64
	Items  []RankedItem
}

// FuseWeightedRRF performs weighted Reciprocal Rank Fusion across an
// arbitrary number of ranked sources (full-text, dense vector, graph
// traversal, community synthesis, ...). Sources with a non-positive weight
// are skipped. ids present in more than one source have their Source
// relabeled "hybrid".
func FuseWeightedRRF(sources []RankedSource, krrf int) []fusedCandidate {
	if krrf <= 0 {
		krrf = 60
	}

	byID := make(map[string]*fusedCandidate)
	order := make([]string, 0)
	for _, src := range sources {
		if src.Weight <= 0 {
			continue
		}
		for i, item := range src.Items {
			c, ok := byID[item.ID]
			if !ok {
				c = &fusedCandidate{ID: item.ID, Metadata: map[string]string{}}
				byID[item.ID] = c
				order = append(order, item.ID)
			}
			c.sourceHits++
			if c.Source == "" {
				c.Source = src.Name
			} else if c.Source != src.Name {
				c.Source = "hybrid"
			}
			if c.Text == "" {
				c.Text = item.Text
			}
			if c.Snippet == "" && item.Snippet != "" {
				c.Snippet = item.Snippet
			}
			for k, v := range item.Metadata {
				if _, exists := c.Metadata[k]; !exists {
					c.Metadata[k] = v
				}
			}
			contrib := src.Weight / float64(krrf+i+1)
			c.Fused += contrib
			switch src.Name {
			case "fulltext":
				c.FtRank = i + 1
				c.FtScore += contrib
			case "vector":
				c.VecRank = i + 1
				c.VecScore += contrib
			}
		}
	}

	out := make([]fusedCandidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.DocID = deriveDocID(id, c.Metadata)
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Fused != out[j].Fused {
			return out[i].Fused > out[j].Fused
		}
		sri := safeRankSum(out[i].FtRank, out[i].VecRank)
		srj := safeRankSum(out[j].FtRank, out[j].VecRank)
		if sri != srj {
			return sri < srj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FuseRRF performs Reciprocal Rank Fusion over FTS and vector candidates,
// the two-source case of FuseWeightedRRF kept for callers that only ever
// combine lexical and dense signals. Weights are derived from
// options.Alpha: w_ft=Alpha, w_vec=1-Alpha. kRRf sets the denominator
// constant (typical default ~60).
func FuseRRF(fts []databases.SearchResult, vec []databases.VectorResult, opt RetrieveOptions) []fusedCandidate {
	wft := opt.Alpha
	if wft < 0 {
		wft = 0
	}
	if wft > 1 {
		wft = 1
	}
	wvec := 1 - wft
	krrf := opt.RRFK

	ftItems := make([]RankedItem, 0, len(fts))
	for _, r := range fts {
		ftItems = append(ftItems, RankedItem{ID: r.ID, Snippet: r.Snippet, Text: r.Text, Metadata: r.Metadata})
	}
	vecItems := make([]RankedItem, 0, len(vec))
	for _, r := range vec {
		md := map[string]string{}
		for k, v := range r.Metadata {
			md[k] = v
		}
		if r.DocumentID != "" {
			md["doc_id"] = r.DocumentID
		}
		snippet := ""
		if r.Content != "" {
			snippet = r.Content
			if len(snippet) > 200 {
				snippet = snippet[:200]
			}
		}
		vecItems = append(vecItems, RankedItem{ID: r.ChunkID, Snippet: snippet, Text: r.Content, Metadata: md})
	}

	return FuseWeightedRRF([]RankedSource{
		{Name: "fulltext", Weight: wft, Items: ftItems},
		{Name: "vector", Weight: wvec, Items: vecItems},
	}, krrf)
}

// FuseGraphAndCommunitySignals extends weighted fusion with graph-derived
// and community-synthesis candidates, the HYBRID/GLOBAL/DRIFT cases that
// contribute a third and fourth ranked source alongside lexical/dense
// results. Weights come from tenant config (ModeWeights) with fallback to
// mode-specific defaults when a tenant hasn't tuned them yet.
func FuseGraphAndCommunitySignals(fts []databases.SearchResult, vec []databases.VectorResult, graph []RankedItem, community []RankedItem, weights ModeWeights, opt RetrieveOptions) []fusedCandidate {
	krrf := opt.RRFK

	toItems := func(fts []databases.SearchResult) []RankedItem {
		out := make([]RankedItem, 0, len(fts))
		for _, r := range fts {
			out = append(out, RankedItem{ID: r.ID, Snippet: r.Snippet, Text: r.Text, Metadata: r.Metadata})
		}
		return out
	}
	toVecItems := func(vec []databases.VectorResult) []RankedItem {
		out := make([]RankedItem, 0, len(vec))
		for _, r := range vec {
			md := map[string]string{}
			for k, v := range r.Metadata {
				md[k] = v
			}
			if r.DocumentID != "" {
				md["doc_id"] = r.DocumentID
			}
			out = append(out, RankedItem{ID: r.ChunkID, Text: r.Content, Metadata: md})
		}
		return out
	}

	return FuseWeightedRRF([]RankedSource{
		{Name: "fulltext", Weight: weights.FullText, Items: toItems(fts)},
		{Name: "vector", Weight: weights.Vector, Items: toVecItems(vec)},
		{Name: "graph", Weight: weights.Graph, Items: graph},
		{Name: "community", Weight: weights.Community, Items: community},
	}, krrf)
}

func safeRankSum(a, b int) int {
	if a == 0 {
		a = 1000000000
	}
	if b == 0 {
		b = 1000000000
	}
	if a > 500000000 {
		a = 500000000
	}
	if b > 500000000 {
		b = 500000000
	}
	return a + b
}

// Diversify re-ranks a fused list to reduce dominance by the same DocID/Source.
// It applies multiplicative penalties as counts increase. When diversify=false,
// the input order is returned.
func Diversify(fused []fusedCandidate, k int, diversify bool) []fusedCandidate {
	if !diversify || k <= 0 || len(fused) <= 1 {
		if k > 0 && k < len(fused) {
			return fused[:k]
		}
		return fused
	}
	lambdaDoc := 0.75
	lambdaSrc := 0.25
	docCount := map[string]int{}
	srcCount := map[string]int{}
	selected := make([]fusedCandidate, 0, min(k, len(fused)))
	used := make([]bool, len(fused))
	for len(selected) < k {
		bestIdx := -1
		bestAdj := -1.0
		for i, c := range fused {
			if used[i] {
				continue
			}
			d := docCount[c.DocID]
			s := srcCount[c.Source]
			denom := 1.0 + lambdaDoc*float64(max(0, d)) + lambdaSrc*float64(max(0, s))
			adj := c.Fused / denom
			if adj > bestAdj || (almostEqual(adj, bestAdj) && c.ID < fused[bestIdx].ID) {
				bestAdj = adj
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		pick := fused[bestIdx]
		selected = append(selected, pick)
		used[bestIdx] = true
		docCount[pick.DocID]++
		srcCount[pick.Source]++
		if len(selected) == len(fused) {
			break
		}
	}
	return selected
}

// FusedToRetrievedItems converts a fused candidate list (from
// FuseWeightedRRF/FuseGraphAndCommunitySignals) into RetrievedItems,
// diversifying and capping to k.
func FusedToRetrievedItems(fused []fusedCandidate, diversify bool, k int) []RetrievedItem {
	diversified := Diversify(fused, k, diversify)
	items := make([]RetrievedItem, 0, len(diversified))
	for _, c := range diversified {
		items = append(items, RetrievedItem{
			ID:      c.ID,
			DocID:   c.DocID,
			Score:   c.Fused,
			Snippet: c.Snippet,
			Text:    c.Text,
			Metadata: c.Metadata,
			Explanation: map[string]any{
				"fused":    c.Fused,
				"ft_rank":  c.FtRank,
				"vec_rank": c.VecRank,
				"ft_rrf":   c.FtScore,
				"vec_rrf":  c.VecScore,
				"source":   c.Source,
			},
		})
	}
	if k <= 0 {
		k = 10
	}
	if len(items) > k {
		items = items[:k]
	}
	return items
}

// FuseAndDiversify is the exported helper to produce final RetrievedItems.
func FuseAndDiversify(fts []databases.SearchResult, vec []databases.VectorResult, plan QueryPlan, opt RetrieveOptions) []RetrievedItem {
	fused := FuseRRF(fts, vec, opt)
	diversified := Diversify(fused, plan.FtK+plan.VecK, opt.Diversify)
	items := make([]RetrievedItem, 0, len(diversified))
	for _, c := range diversified {
		items = append(items, RetrievedItem{
			ID:      c.ID,
			DocID:   c.DocID,
			Score:   c.Fused,
			Snippet: c.Snippet,
			Text:    c.Text,
			Metadata: c.Metadata,
			Explanation: map[string]any{
				"fused":    c.Fused,
				"ft_rank":  c.FtRank,
				"vec_rank": c.VecRank,
				"ft_rrf":   c.FtScore,
				"vec_rrf":  c.VecScore,
				"source":   c.Source,
			},
		})
	}
	k := opt.K
	if k <= 0 {
		k = 10
	}
	if len(items) > k {
		items = items[:k]
	}
	return items
}

func deriveDocID(chunkID string, md map[string]string) string {
	if d := md["doc_id"]; d != "" {
		return d
	}
	if strings.HasPrefix(chunkID, "chunk:") {
		rest := strings.TrimPrefix(chunkID, "chunk:")
		if idx := strings.LastIndex(rest, ":"); idx != -1 {
			return rest[:idx]
		}
	}
	return chunkID
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DeriveDocIDPublic exposes internal doc-id derivation for other packages.
func DeriveDocIDPublic(chunkID string, md map[string]string) string { return deriveDocID(chunkID, md) }
