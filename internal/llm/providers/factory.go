package providers

import (
	"fmt"
	"net/http"

	"manifold/internal/config"
	"manifold/internal/eventbus"
	"manifold/internal/llm"
	"manifold/internal/llm/anthropic"
	"manifold/internal/llm/google"
	openaillm "manifold/internal/llm/openai"
)

// Build constructs a single llm.Provider based on the configured provider
// name. It is the per-link constructor BuildChain uses; composition roots
// should call BuildProvider instead so failover and circuit breaking are
// always in the path.
// - openai: uses the OpenAI client
// - local: uses the OpenAI client with completions API
// - anthropic/google: the Anthropic and Google (genai) clients
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLMClient.Provider {
	case "", "openai":
		return openaillm.New(cfg.LLMClient.OpenAI, httpClient), nil
	case "local":
		oc := cfg.LLMClient.OpenAI
		oc.API = "completions"
		return openaillm.New(oc, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.LLMClient.Anthropic, httpClient), nil
	case "google":
		return google.New(cfg.LLMClient.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMClient.Provider)
	}
}

// BuildProvider is the composition root's entrypoint: it resolves
// cfg.ProviderChain (falling back to the single cfg.LLMClient provider) into
// a *Chain and returns it as a plain llm.Provider, so every caller gets
// ordered failover and per-link circuit breaking without knowing the chain
// exists. bus may be nil, in which case usage rows are simply not published.
func BuildProvider(cfg config.Config, httpClient *http.Client, bus *eventbus.Bus) (llm.Provider, error) {
	return BuildChain(cfg, httpClient, bus)
}
