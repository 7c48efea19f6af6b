package providers

// ModelRegistryEntry is one static catalog row describing a model's cost,
// tier, and quirks, used to price usage rows.
type ModelRegistryEntry struct {
	Provider        string
	Model           string
	Tier            string // "fast" | "standard" | "reasoning"
	InputCostPer1K  float64
	OutputCostPer1K float64
	Dimensions      int
	ContextWindow   int
	Quirks          []string
}

// ModelRegistry is the static catalog backing cost computation. Entries are
// illustrative defaults; configuration does not change them, and a
// (provider, model) pair missing here is priced at 0.
var ModelRegistry = map[string]ModelRegistryEntry{
	"openai:gpt-4o-mini": {
		Provider: "openai", Model: "gpt-4o-mini", Tier: "fast",
		InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006, ContextWindow: 128000,
	},
	"openai:gpt-4o": {
		Provider: "openai", Model: "gpt-4o", Tier: "standard",
		InputCostPer1K: 0.0025, OutputCostPer1K: 0.01, ContextWindow: 128000,
	},
	"anthropic:claude-3-5-sonnet": {
		Provider: "anthropic", Model: "claude-3-5-sonnet", Tier: "standard",
		InputCostPer1K: 0.003, OutputCostPer1K: 0.015, ContextWindow: 200000,
	},
	"anthropic:claude-3-5-haiku": {
		Provider: "anthropic", Model: "claude-3-5-haiku", Tier: "fast",
		InputCostPer1K: 0.0008, OutputCostPer1K: 0.004, ContextWindow: 200000,
	},
	"google:gemini-1.5-pro": {
		Provider: "google", Model: "gemini-1.5-pro", Tier: "reasoning",
		InputCostPer1K: 0.00125, OutputCostPer1K: 0.005, ContextWindow: 2000000,
	},
}

// EstimateCost prices a usage sample against the registry, returning 0 when
// the (provider, model) pair is not catalogued rather than erroring — cost
// estimation is best-effort telemetry, not billing of record.
func EstimateCost(provider, model string, tokensIn, tokensOut int) float64 {
	entry, ok := ModelRegistry[provider+":"+model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1000*entry.InputCostPer1K + float64(tokensOut)/1000*entry.OutputCostPer1K
}
