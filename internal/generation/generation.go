// Package generation implements the answer-generation service: it
// assembles a grounded prompt from retrieved sources, drives the LLM
// provider's streaming call, and republishes the raw delta stream as a
// small set of typed events consumers can switch on, scrubbing PII from
// both the incoming query and the persisted final answer.
package generation

import (
	"context"
	"fmt"
	"strings"

	"manifold/internal/llm"
	"manifold/internal/observability"
	"manifold/internal/rag/retrieve"
)

// Event is the sealed set of messages a Stream emits, mirrored as a tagged
// union over four concrete structs rather than an interface with many
// implementations, so callers can switch on Kind without a type assertion
// chain.
type EventKind string

const (
	EventSources EventKind = "sources"
	EventToken   EventKind = "token"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// SourcesEvent announces the grounding set before any tokens stream, so a
// UI can render citations immediately.
type SourcesEvent struct {
	Items []retrieve.RetrievedItem
}

// TokenEvent carries one incremental delta of generated text.
type TokenEvent struct {
	Delta string
}

// DoneEvent marks a successful end of stream, carrying the final,
// PII-scrubbed answer text.
type DoneEvent struct {
	FinalText string
}

// ErrorEvent terminates the stream early.
type ErrorEvent struct {
	Err error
}

// Event wraps exactly one of the four payloads above, tagged by Kind.
type Event struct {
	Kind    EventKind
	Sources SourcesEvent
	Token   TokenEvent
	Done    DoneEvent
	Error   ErrorEvent
}

// Request is a single generation call.
type Request struct {
	TenantID string
	Query    string
	Sources  []retrieve.RetrievedItem
	Model    string
	History  []llm.Message
}

// Service assembles prompts and drives provider streaming.
type Service struct {
	provider llm.Provider
}

// New builds a Service over a provider (itself possibly a C7 failover
// wrapper implementing llm.Provider).
func New(provider llm.Provider) *Service {
	return &Service{provider: provider}
}

const systemPrompt = `You are a retrieval-grounded assistant. Answer using only the numbered
sources provided. Cite sources inline as [n]. If the sources do not contain
the answer, say so plainly rather than guessing.`

// AssemblePrompt renders the system message plus a user message containing
// the scrubbed query and numbered source excerpts.
func AssemblePrompt(req Request) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(observability.RedactPII(req.Query))
	sb.WriteString("\n\nSources:\n")
	for i, item := range req.Sources {
		text := item.Text
		if text == "" {
			text = item.Snippet
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, item.Doc.Title, text)
	}

	msgs := make([]llm.Message, 0, len(req.History)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	msgs = append(msgs, req.History...)
	msgs = append(msgs, llm.Message{Role: "user", Content: sb.String()})
	return msgs
}

// streamHandler adapts the llm.StreamHandler callback contract into the
// typed Event channel this package exposes, accumulating the full answer
// so DoneEvent can carry a scrubbed final text.
type streamHandler struct {
	out  chan<- Event
	buf  strings.Builder
}

func (h *streamHandler) OnDelta(content string) {
	h.buf.WriteString(content)
	h.out <- Event{Kind: EventToken, Token: TokenEvent{Delta: content}}
}

func (h *streamHandler) OnToolCall(llm.ToolCall)         {}
func (h *streamHandler) OnImage(llm.GeneratedImage)      {}
func (h *streamHandler) OnThoughtSummary(string)         {}

// Stream assembles the prompt, emits SourcesEvent immediately, then drives
// the provider's ChatStream, republishing deltas as TokenEvents and
// finishing with a scrubbed DoneEvent (or an ErrorEvent on failure). The
// returned channel is closed when the stream ends.
func (s *Service) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		out <- Event{Kind: EventSources, Sources: SourcesEvent{Items: req.Sources}}

		msgs := AssemblePrompt(req)
		h := &streamHandler{out: out}
		if err := s.provider.ChatStream(ctx, msgs, nil, req.Model, h); err != nil {
			out <- Event{Kind: EventError, Error: ErrorEvent{Err: err}}
			return
		}
		final := observability.RedactPII(h.buf.String())
		out <- Event{Kind: EventDone, Done: DoneEvent{FinalText: final}}
	}()
	return out
}

// Generate is the non-streaming convenience path: it drains Stream and
// returns the final scrubbed text, or the first error encountered.
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	for ev := range s.Stream(ctx, req) {
		switch ev.Kind {
		case EventDone:
			return ev.Done.FinalText, nil
		case EventError:
			return "", ev.Error.Err
		}
	}
	return "", fmt.Errorf("generation: stream closed without a terminal event")
}
