package retrieve

import "strings"

// SearchMode selects which fan-out strategy step 6 of the retrieval
// pipeline uses to produce ranked candidates.
type SearchMode string

const (
	ModeBasic  SearchMode = "BASIC"
	ModeHybrid SearchMode = "HYBRID"
	ModeGlobal SearchMode = "GLOBAL"
	ModeDrift  SearchMode = "DRIFT"
)

// ModeWeights are the fusion weights handed to FuseGraphAndCommunitySignals.
// Tenant config supplies a default pair (vector/graph); mode-specific
// defaults fill in the rest when a tenant hasn't tuned them.
type ModeWeights struct {
	FullText  float64
	Vector    float64
	Graph     float64
	Community float64
}

// DefaultModeWeights returns the hard-coded fallback weights for a mode,
// used when no tenant-level override exists.
func DefaultModeWeights(mode SearchMode, tenantVector, tenantGraph float64) ModeWeights {
	switch mode {
	case ModeBasic:
		return ModeWeights{FullText: 0, Vector: 1, Graph: 0, Community: 0}
	case ModeHybrid:
		return ModeWeights{FullText: 0.3, Vector: tenantVector, Graph: tenantGraph, Community: 0}
	case ModeGlobal:
		return ModeWeights{FullText: 0, Vector: 0.2, Graph: 0, Community: 1}
	case ModeDrift:
		return ModeWeights{FullText: 0.2, Vector: tenantVector, Graph: tenantGraph, Community: 0}
	default:
		return ModeWeights{FullText: 0.3, Vector: 0.7, Graph: 0, Community: 0}
	}
}

// globalTriggerWords are terms that tend to indicate a question about the
// corpus as a whole rather than a specific document or entity, nudging the
// router toward GLOBAL mode.
var globalTriggerWords = []string{
	"overall", "in general", "across all", "summarize", "summary of",
	"main themes", "common", "trends", "how many documents",
}

// RouteSearchMode decides the SearchMode for one request. An explicit
// client override (opt.Mode, when non-empty) always wins; otherwise a small
// heuristic is checked in this order: global/aggregate language in the
// query favors GLOBAL; an explicit request for iterative/deep exploration
// (via opt.Drift) favors DRIFT; a #tag or doc: filter, or opt.GraphAugment,
// favors HYBRID; everything else defaults to BASIC.
func RouteSearchMode(query string, filters ParsedFilters, opt RetrieveOptions) SearchMode {
	if opt.Mode != "" {
		return opt.Mode
	}
	lower := strings.ToLower(query)
	for _, w := range globalTriggerWords {
		if strings.Contains(lower, w) {
			return ModeGlobal
		}
	}
	if opt.Drift {
		return ModeDrift
	}
	if len(filters.Tags) > 0 || len(filters.DocIDs) > 0 || opt.GraphAugment {
		return ModeHybrid
	}
	return ModeBasic
}
