package retrieve

import (
	"context"
	"strings"

	"manifold/internal/llm"
)

const rewriteSystemPrompt = `Rewrite the user's latest message into a standalone search query using the
conversation history for context. Resolve pronouns and implicit references. Reply with only the
rewritten query, nothing else.`

// RewriteQuery resolves pronouns and implicit references in q against prior
// turns in history (oldest first) via a dedicated LLM call, matching step 1
// of the retrieval pipeline. With no history or no provider it returns q
// unchanged rather than failing the request — contextual rewrite is an
// optimization, not a precondition for search.
func RewriteQuery(ctx context.Context, provider llm.Provider, q string, history []string) (string, error) {
	if provider == nil || len(history) == 0 {
		return q, nil
	}
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: rewriteSystemPrompt})
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: "user", Content: h})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: q})

	msg, err := provider.Chat(ctx, msgs, nil, "")
	if err != nil {
		return q, err
	}
	rewritten := strings.TrimSpace(msg.Content)
	if rewritten == "" {
		return q, nil
	}
	return rewritten, nil
}
