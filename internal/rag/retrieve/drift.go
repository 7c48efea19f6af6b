package retrieve

import (
	"context"
	"time"
)

// DriftOptions controls DRIFT mode's iterative local-search expansion: each
// round re-traverses the graph from the current frontier with a shrinking
// radius (fewer hops, a narrower beam) until a round adds nothing new or the
// iteration budget runs out.
type DriftOptions struct {
	MaxIterations     int
	InitialHops       int
	InitialMaxPerSeed int
	Boost             float64
	Deadline          time.Duration
	ExcludeRelTypes   []string
}

// DriftDiagnostics reports how many rounds DRIFT actually ran and how much
// each one added, for the retrieve debug payload.
type DriftDiagnostics struct {
	Iterations int
	Expanded   int
	Duration   time.Duration
}

// DriftExpand runs DRIFT mode's iterative exploration: it re-expands the
// seed set through the graph every round with a shrinking radius, stopping
// as soon as a round adds nothing new. When the very first round adds
// nothing (the local neighborhood is exhausted, or g is unavailable), the
// seed set is returned unchanged — DRIFT degrades to BASIC's plain fused
// results rather than forcing empty graph hops onto the response.
func DriftExpand(ctx context.Context, g GraphFacade, tenantID string, seed []RetrievedItem, opts DriftOptions) ([]RetrievedItem, DriftDiagnostics) {
	start := time.Now()
	diag := DriftDiagnostics{}
	if g == nil || len(seed) == 0 {
		return seed, diag
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	hops := opts.InitialHops
	if hops <= 0 {
		hops = 3
	}
	maxPerSeed := opts.InitialMaxPerSeed
	if maxPerSeed <= 0 {
		maxPerSeed = 4
	}
	boost := opts.Boost
	if boost == 0 {
		boost = 0.02
	}

	items := seed
	for round := 0; round < maxIter; round++ {
		if hops <= 0 || maxPerSeed <= 0 {
			break
		}
		if opts.Deadline > 0 && time.Since(start) >= opts.Deadline {
			break
		}
		geOpt := GraphExpandOptions{
			TopN:            len(items),
			MaxPerSeed:      maxPerSeed,
			Hops:            hops,
			Boost:           boost,
			Deadline:        opts.Deadline,
			ExcludeRelTypes: opts.ExcludeRelTypes,
		}
		expanded, edgeDiag := ExpandWithGraph(ctx, g, tenantID, items, geOpt)
		if edgeDiag.Expanded == 0 {
			break
		}
		items = expanded
		diag.Iterations++
		diag.Expanded += edgeDiag.Expanded

		// Shrink the radius for the next round: fewer hops, a narrower beam,
		// and a smaller boost so later rounds refine rather than flood.
		hops--
		maxPerSeed--
		boost /= 2
	}
	diag.Duration = time.Since(start)
	return items, diag
}
