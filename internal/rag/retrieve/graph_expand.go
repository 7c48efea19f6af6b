package retrieve

import (
    "context"
    "time"
)

// GraphExpandOptions control how we expand fused candidates via the graph.
type GraphExpandOptions struct {
    // TopN is how many top fused items to consider for expansion.
    TopN int
    // MaxPerSeed limits how many neighbors to include per seed (the beam width).
    MaxPerSeed int
    // Hops is the number of expansion hops (1 = direct neighbors only).
    Hops int
    // Boost is the additive boost applied to expanded neighbors relative to their seed.
    Boost float64
    // Deadline bounds total traversal wall time; once exceeded, partial
    // results accumulated so far are returned instead of blocking further.
    // Zero means the donor's default of 200ms.
    Deadline time.Duration
    // ExcludeRelTypes are relationship types never traversed. Zero value
    // falls back to {"BELONGS_TO", "PARENT_OF"}.
    ExcludeRelTypes []string
}

var defaultExcludedRelTypes = []string{"BELONGS_TO", "PARENT_OF"}
var defaultTraversalDeadline = 200 * time.Millisecond

type GraphDiagnostics struct {
    Expanded int
    Duration time.Duration
}

// ExpandWithGraph expands a fused candidate list using graph neighbors.
// It returns a new list of RetrievedItem including original items and expanded
// neighbors (deduped by ID) with small additive boosts.
func ExpandWithGraph(ctx context.Context, g GraphFacade, tenantID string, fused []RetrievedItem, opt GraphExpandOptions) ([]RetrievedItem, GraphDiagnostics) {
    start := time.Now()
    diag := GraphDiagnostics{}
    if g == nil || len(fused) == 0 || opt.TopN <= 0 || opt.Hops <= 0 || opt.Boost == 0 {
        // pass-through
        return fused, diag
    }
    top := opt.TopN
    if top > len(fused) { top = len(fused) }

    deadline := opt.Deadline
    if deadline <= 0 { deadline = defaultTraversalDeadline }
    excluded := opt.ExcludeRelTypes
    if len(excluded) == 0 { excluded = defaultExcludedRelTypes }

    // Index existing items and scores for quick checks
    byID := make(map[string]RetrievedItem, len(fused))
    for _, it := range fused { byID[it.ID] = it }

    maxPer := opt.MaxPerSeed
    if maxPer <= 0 { maxPer = 3 }

    addNeighbor := func(seed RetrievedItem, nid string, hopBoost float64) RetrievedItem {
        item, exists := byID[nid]
        if !exists {
            item = RetrievedItem{
                ID: nid,
                Score: seed.Score + hopBoost,
                Metadata: map[string]string{"expanded_from": seed.ID},
                Explanation: map[string]any{"graph_boost": hopBoost, "expanded_from": seed.ID},
            }
            byID[nid] = item
            diag.Expanded++
        }
        return item
    }

    // Beam-search traversal: at each hop, expand the current frontier,
    // retaining up to maxPer neighbors per seed ranked by edge weight
    // (Neighbors already returns them weight-descending), excluding
    // configured relationship types. A wall-clock deadline bounds total
    // traversal time, returning whatever was accumulated so far.
    frontier := make([]RetrievedItem, 0, top)
    for i := 0; i < top; i++ {
        frontier = append(frontier, fused[i])
    }
    for hop := 0; hop < opt.Hops; hop++ {
        if time.Since(start) >= deadline {
            break
        }
        hopBoost := opt.Boost / float64(hop+1)
        next := make([]RetrievedItem, 0, len(frontier)*maxPer)
        for _, seed := range frontier {
            if time.Since(start) >= deadline {
                break
            }
            docID := deriveDocID(seed.ID, seed.Metadata)
            neigh, err := g.Neighbors(ctx, tenantID, docID, excluded, maxPer)
            if err != nil {
                continue
            }
            cnt := 0
            for _, n := range neigh {
                if n.Name == seed.ID {
                    continue
                }
                next = append(next, addNeighbor(seed, n.Name, hopBoost))
                cnt++
                if cnt >= maxPer {
                    break
                }
            }
        }
        if len(next) == 0 {
            break
        }
        frontier = next
    }

    out := make([]RetrievedItem, 0, len(byID))
    out = append(out, fused...)
    for id, it := range byID {
        if !containsID(fused, id) {
            out = append(out, it)
        }
    }
    diag.Duration = time.Since(start)
    return out, diag
}

func containsID(items []RetrievedItem, id string) bool {
    for _, it := range items { if it.ID == id { return true } }
    return false
}

