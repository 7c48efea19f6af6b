package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"manifold/internal/apperr"
	"manifold/internal/config"
	"manifold/internal/eventbus"
	"manifold/internal/llm"
)

// UsageRow is the durable, append-only usage record published to the
// events usage topic after every generate call, backing cost-aggregation
// queries downstream.
type UsageRow struct {
	TenantID   string    `json:"tenant_id"`
	Operation  string    `json:"operation"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	TokensIn   int       `json:"tokens_in"`
	TokensOut  int       `json:"tokens_out"`
	Cost       float64   `json:"cost"`
	RequestID  string    `json:"request_id"`
	DocumentID string    `json:"document_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// GenerateResult is the richer response contract the chain returns, on top
// of the underlying llm.Provider.Chat's plain Message — it surfaces which
// link in the chain answered, how long it took, and a finish reason.
type GenerateResult struct {
	Message      llm.Message
	Provider     string
	Model        string
	FinishReason string
	Latency      time.Duration
	TokensIn     int
	TokensOut    int
}

// chainLink is one entry in the failover chain: a concrete provider paired
// with its own circuit breaker and the config entry that produced it.
type chainLink struct {
	entry    config.ProviderChainEntry
	provider llm.Provider
	breaker  *circuitBreaker
}

// Chain drives an ordered failover across provider links, short-circuiting
// any link whose breaker is OPEN, and publishing a UsageRow for every
// successful Generate call.
type Chain struct {
	links []*chainLink
	bus   *eventbus.Bus
}

// BuildChain resolves each ProviderChainEntry into a concrete llm.Provider
// via Build, pairing it with its own circuit breaker. Falls back to a
// single-entry chain built from cfg.LLMClient when ProviderChain is empty,
// so existing single-provider configuration keeps working unchanged.
func BuildChain(cfg config.Config, httpClient *http.Client, bus *eventbus.Bus) (*Chain, error) {
	entries := cfg.ProviderChain
	if len(entries) == 0 {
		entries = []config.ProviderChainEntry{{Name: cfg.LLMClient.Provider}}
	}
	links := make([]*chainLink, 0, len(entries))
	for _, e := range entries {
		providerCfg := cfg
		providerCfg.LLMClient.Provider = e.Name
		p, err := Build(providerCfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("build provider chain link %q: %w", e.Name, err)
		}
		links = append(links, &chainLink{
			entry:    e,
			provider: p,
			breaker:  newCircuitBreaker(e.CircuitFailThreshold, time.Duration(e.CircuitCooldownSecond)*time.Second),
		})
	}
	return &Chain{links: links, bus: bus}, nil
}

// Generate tries each chain link in order, skipping any whose breaker is
// OPEN, recording success/failure on the breaker it used, and publishing a
// UsageRow on every successful call. Returns apperr.CodeProviderUnavailable
// when every link is unavailable or fails.
func (c *Chain) Generate(ctx context.Context, tenantID, requestID string, msgs []llm.Message, tools []llm.ToolSchema) (GenerateResult, error) {
	var lastErr error
	for _, link := range c.links {
		if !link.breaker.Allow() {
			continue
		}
		model := link.entry.Model
		start := time.Now()
		msg, err := link.provider.Chat(ctx, msgs, tools, model)
		latency := time.Since(start)
		if err != nil {
			link.breaker.RecordFailure()
			lastErr = err
			continue
		}
		link.breaker.RecordSuccess()

		tokensIn := 0
		for _, m := range msgs {
			tokensIn += llm.EstimateTokens(m.Content)
		}
		tokensOut := llm.EstimateTokens(msg.Content)
		cost := EstimateCost(link.entry.Name, model, tokensIn, tokensOut)

		if c.bus != nil {
			_ = c.bus.Publish(ctx, "usage", UsageRow{
				TenantID: tenantID, Operation: "generate", Provider: link.entry.Name, Model: model,
				TokensIn: tokensIn, TokensOut: tokensOut, Cost: cost, RequestID: requestID,
				RecordedAt: time.Now().UTC(),
			})
		}
		return GenerateResult{
			Message: msg, Provider: link.entry.Name, Model: model,
			FinishReason: "stop", Latency: latency, TokensIn: tokensIn, TokensOut: tokensOut,
		}, nil
	}
	if lastErr != nil {
		return GenerateResult{}, apperr.Wrap(apperr.CodeProviderUnavailable, "all provider chain links failed", lastErr)
	}
	return GenerateResult{}, apperr.New(apperr.CodeProviderUnavailable, "no provider chain link is available (all circuits open)")
}

// GenerateStream drives the same failover policy over ChatStream,
// attempting each link in turn until one completes without error.
func (c *Chain) GenerateStream(ctx context.Context, tenantID, requestID string, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) (string, error) {
	var lastErr error
	for _, link := range c.links {
		if !link.breaker.Allow() {
			continue
		}
		useModel := model
		if useModel == "" {
			useModel = link.entry.Model
		}
		err := link.provider.ChatStream(ctx, msgs, tools, useModel, h)
		if err != nil {
			link.breaker.RecordFailure()
			lastErr = err
			continue
		}
		link.breaker.RecordSuccess()
		return link.entry.Name, nil
	}
	if lastErr != nil {
		return "", apperr.Wrap(apperr.CodeProviderUnavailable, "all provider chain links failed", lastErr)
	}
	return "", apperr.New(apperr.CodeProviderUnavailable, "no provider chain link is available (all circuits open)")
}

// BreakerStates reports each link's current breaker state, keyed by
// provider name, for health/metrics endpoints.
func (c *Chain) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.links))
	for _, link := range c.links {
		out[link.entry.Name] = link.breaker.State()
	}
	return out
}

// Chat implements llm.Provider by delegating to Generate with a
// best-effort tenant/request ID, so a Chain can be used anywhere an
// llm.Provider is expected (e.g. the generation service).
func (c *Chain) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	res, err := c.Generate(ctx, "", "", msgs, tools)
	return res.Message, err
}

// ChatStream implements llm.Provider by delegating to GenerateStream.
func (c *Chain) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	_, err := c.GenerateStream(ctx, "", "", msgs, tools, model, h)
	return err
}
