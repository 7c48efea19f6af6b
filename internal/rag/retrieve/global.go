package retrieve

import (
	"context"
	"fmt"
	"strings"

	"manifold/internal/llm"
)

// CommunitySummary is one precomputed community-detection cluster summary,
// produced by an out-of-band community-detection pass and cached for GLOBAL
// mode to synthesize over instead of re-running detection per request.
type CommunitySummary struct {
	ID      string
	Summary string
}

// CommunitySummaryStore lists the cached community summaries for a tenant.
// GLOBAL mode treats a stale community (internal/persistence/databases
// MarkCommunityStale) as still usable — staleness only means the next
// detection pass should recompute it, not that today's summary is unusable.
type CommunitySummaryStore interface {
	ListSummaries(ctx context.Context, tenantID string) ([]CommunitySummary, error)
}

const globalSynthesisSystemPrompt = `You answer questions about an entire document corpus by synthesizing across
community summaries of its knowledge graph. Cite which communities informed your answer by their ID in
brackets, e.g. [community-3]. If the summaries don't cover the question, say so plainly.`

// SynthesizeGlobal answers a GLOBAL-mode query by asking an LLM to
// synthesize across a tenant's cached community summaries, grounding the
// 10-step pipeline's step 6 GLOBAL case. It returns a single ranked item
// (rank 1) carrying the synthesized answer as Text, suitable as the
// "community" source handed to FuseGraphAndCommunitySignals.
func SynthesizeGlobal(ctx context.Context, store CommunitySummaryStore, provider llm.Provider, tenantID, query string) ([]RankedItem, error) {
	if store == nil || provider == nil {
		return nil, nil
	}
	summaries, err := store.ListSummaries(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list community summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&sb, "[%s] %s\n\n", s.ID, s.Summary)
	}

	msgs := []llm.Message{
		{Role: "system", Content: globalSynthesisSystemPrompt},
		{Role: "user", Content: "Community summaries:\n" + sb.String() + "\nQuestion: " + query},
	}
	msg, err := provider.Chat(ctx, msgs, nil, "")
	if err != nil {
		return nil, fmt.Errorf("global synthesis chat: %w", err)
	}

	return []RankedItem{{
		ID:   "global-synthesis:" + tenantID,
		Text: msg.Content,
		Metadata: map[string]string{
			"source_count": fmt.Sprintf("%d", len(summaries)),
		},
	}}, nil
}
