// Package config loads runtime configuration for the GraphRAG service from
// environment variables (with an optional .env overlay) and, for the
// sections that are naturally nested, an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v3"
)

// AnthropicPromptCacheConfig controls which parts of a request get Anthropic
// prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system"`
	CacheTools    bool `yaml:"cache_tools"`
	CacheMessages bool `yaml:"cache_messages"`
}

type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	BaseURL     string                     `yaml:"base_url"`
	Model       string                     `yaml:"model"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache"`
	ExtraParams map[string]any             `yaml:"extra_params,omitempty"`
}

type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key"`
	BaseURL     string         `yaml:"base_url"`
	Model       string         `yaml:"model"`
	API         string         `yaml:"api"` // "chat" (default), "completions", "responses"
	ExtraParams map[string]any `yaml:"extra_params,omitempty"`
	LogPayloads bool           `yaml:"log_payloads"`
}

type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout_seconds"`
}

// LLMClient selects and configures the active chat-completion provider.
// Capacity-leased failover across providers is configured separately in
// ProviderChain.
type LLMClient struct {
	Provider  string          `yaml:"provider"` // openai|local|anthropic|google
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google    GoogleConfig    `yaml:"google"`
}

// ProviderChainEntry names one link in an ordered failover chain used by
// the generation service when the primary provider's capacity lease or
// circuit breaker rejects a request.
type ProviderChainEntry struct {
	Name                  string  `yaml:"name"` // openai|anthropic|google
	Model                 string  `yaml:"model"`
	Temperature           float64 `yaml:"temperature"`
	CircuitFailThreshold  int     `yaml:"circuit_fail_threshold"`
	CircuitCooldownSecond int     `yaml:"circuit_cooldown_seconds"`
}

type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	Path       string `yaml:"path"`
	APIHeader  string `yaml:"api_header"` // "Authorization" or a custom header name
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    int    `yaml:"timeout_seconds"`
	// Headers are extra request headers; an entry here replaces the header
	// set from APIHeader/APIKey when both name the same header.
	Headers map[string]string `yaml:"headers,omitempty"`
}

type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", "AES256", "aws:kms"
	KMSKeyID string `yaml:"kms_key_id"`
}

type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Region                string      `yaml:"region"`
	Endpoint              string      `yaml:"endpoint"`
	AccessKey             string      `yaml:"access_key"`
	SecretKey             string      `yaml:"secret_key"`
	Prefix                string      `yaml:"prefix"`
	UsePathStyle          bool        `yaml:"use_path_style"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

type ObsConfig struct {
	OTLP           string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// DBBackendConfig names a backend ("memory", "auto", "postgres", "qdrant",
// "neo4j", "none") and its connection string; Dimensions/Metric only apply
// to the vector section.
type DBBackendConfig struct {
	Backend    string `yaml:"backend"`
	DSN        string `yaml:"dsn"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|ip
	// Username/Password apply to backends with separate credential fields
	// (e.g. neo4j, whose driver takes auth apart from the bolt:// URI).
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DBConfig configures the three persistence backends independently, falling
// back to DefaultDSN when a section omits its own.
type DBConfig struct {
	DefaultDSN string          `yaml:"default_dsn"`
	Search     DBBackendConfig `yaml:"search"`
	Vector     DBBackendConfig `yaml:"vector"`
	Graph      DBBackendConfig `yaml:"graph"`
}

// CapacityConfig bounds concurrent in-flight LLM calls per class, reserving
// headroom for interactive chat over background ingestion/community work.
type CapacityConfig struct {
	RedisDSN         string `yaml:"redis_dsn"`
	TotalSlots       int    `yaml:"total_slots"`
	ChatReserved     int    `yaml:"chat_reserved"`
	IngestionShare   int    `yaml:"ingestion_share"`
	CommunitiesShare int    `yaml:"communities_share"`
	LeaseTimeoutSec  int    `yaml:"lease_timeout_seconds"`
}

// RateLimitConfig configures the Redis sliding-window limiter guarding
// per-tenant request volume. Categories overrides DefaultLimit for a named
// bucket ("general", "query", "upload").
type RateLimitConfig struct {
	RedisDSN     string         `yaml:"redis_dsn"`
	WindowSecond int            `yaml:"window_seconds"`
	DefaultLimit int            `yaml:"default_limit"`
	Categories   map[string]int `yaml:"categories,omitempty"`
}

// CacheConfig configures the tenant-scoped, timestamp-invalidated result
// cache sitting in front of retrieval.
type CacheConfig struct {
	RedisDSN string `yaml:"redis_dsn"`
	TTLSecs  int    `yaml:"ttl_seconds"`
}

// TenancyConfig carries defaults applied to a tenant the first time it is
// seen, before any per-tenant tuning override exists.
type TenancyConfig struct {
	DefaultRRFK           int     `yaml:"default_rrf_k"`
	DefaultSimilarityEdge float64 `yaml:"default_similarity_edge_threshold"`
	DefaultVectorWeight   float64 `yaml:"default_vector_weight"`
	DefaultGraphWeight    float64 `yaml:"default_graph_weight"`
}

// EventsConfig configures the Kafka topics used for async document
// processing and audit logging.
type EventsConfig struct {
	Brokers      []string `yaml:"brokers"`
	IngestTopic  string   `yaml:"ingest_topic"`
	AuditTopic   string   `yaml:"audit_topic"`
	UsageTopic   string   `yaml:"usage_topic"`
	StateTopic   string   `yaml:"state_topic"`
	ConsumerName string   `yaml:"consumer_group"`
}

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LLMClient     LLMClient             `yaml:"llm_client"`
	ProviderChain []ProviderChainEntry  `yaml:"provider_chain"`
	Embeddings    EmbeddingConfig       `yaml:"embeddings"`
	Reranker      EmbeddingConfig       `yaml:"reranker"`

	Databases DBConfig `yaml:"databases"`
	Objects   S3Config `yaml:"objects"`
	OTel      ObsConfig `yaml:"otel"`

	Capacity  CapacityConfig  `yaml:"capacity"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Tenancy   TenancyConfig   `yaml:"tenancy"`
	Events    EventsConfig    `yaml:"events"`
}

// Load reads environment variables (optionally overlaid from a .env file),
// then merges in a YAML file named by CONFIG_FILE (or "config.yaml" if that
// file exists in the working directory) for any field the environment left
// empty. Environment variables always win over YAML. The built-in defaults
// for the host, the tenancy section and the storage backends are applied
// after the file, so YAML can set those fields. Every other built-in default
// (for example the port, the OpenAI base URL, the embedding path and
// timeout, the vector metric, the S3 region, the OTel service name, the
// Kafka topic names and the cache TTL) is set before the file is read and
// takes precedence over it; rate_limit.window_seconds is not read from the
// file.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.Capacity.LeaseTimeoutSec = 30
	cfg.RateLimit.WindowSecond = 60
	cfg.Cache.TTLSecs = 900

	cfg.Host = os.Getenv("HOST")
	cfg.Port = envInt("PORT", 8085)

	cfg.LLMClient.Provider = strings.TrimSpace(os.Getenv("LLM_PROVIDER"))
	cfg.LLMClient.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLMClient.OpenAI.BaseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1")
	cfg.LLMClient.OpenAI.Model = os.Getenv("OPENAI_MODEL")
	cfg.LLMClient.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.LLMClient.Anthropic.Model = os.Getenv("ANTHROPIC_MODEL")
	cfg.LLMClient.Google.APIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.LLMClient.Google.Model = os.Getenv("GOOGLE_MODEL")

	cfg.Embeddings.BaseURL = os.Getenv("EMBEDDINGS_BASE_URL")
	cfg.Embeddings.APIKey = os.Getenv("EMBEDDINGS_API_KEY")
	cfg.Embeddings.Model = os.Getenv("EMBEDDINGS_MODEL")
	cfg.Embeddings.Dimensions = envInt("EMBEDDINGS_DIMENSIONS", 1536)
	cfg.Embeddings.APIHeader = firstNonEmpty(os.Getenv("EMBEDDINGS_API_HEADER"), "Authorization")
	cfg.Embeddings.Path = firstNonEmpty(os.Getenv("EMBEDDINGS_PATH"), "/embeddings")
	cfg.Embeddings.Timeout = envInt("EMBEDDINGS_TIMEOUT_SECONDS", 30)

	cfg.Databases.DefaultDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN"))
	cfg.Databases.Search.Backend = os.Getenv("SEARCH_BACKEND")
	cfg.Databases.Search.DSN = os.Getenv("SEARCH_DSN")
	cfg.Databases.Vector.Backend = os.Getenv("VECTOR_BACKEND")
	cfg.Databases.Vector.DSN = os.Getenv("VECTOR_DSN")
	cfg.Databases.Vector.Dimensions = envInt("VECTOR_DIMENSIONS", 0)
	cfg.Databases.Vector.Metric = firstNonEmpty(os.Getenv("VECTOR_METRIC"), "cosine")
	cfg.Databases.Graph.Backend = os.Getenv("GRAPH_BACKEND")
	cfg.Databases.Graph.DSN = os.Getenv("GRAPH_DSN")
	cfg.Databases.Graph.Username = os.Getenv("GRAPH_USERNAME")
	cfg.Databases.Graph.Password = os.Getenv("GRAPH_PASSWORD")

	cfg.Objects.Bucket = os.Getenv("S3_BUCKET")
	cfg.Objects.Region = firstNonEmpty(os.Getenv("S3_REGION"), "us-east-1")
	cfg.Objects.Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.Objects.AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.Objects.SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.Objects.UsePathStyle = envBool("S3_USE_PATH_STYLE", false)

	cfg.OTel.OTLP = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTel.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "graphrag")
	cfg.OTel.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), "development")

	cfg.Capacity.RedisDSN = firstNonEmpty(os.Getenv("CAPACITY_REDIS_DSN"), os.Getenv("REDIS_DSN"))
	cfg.RateLimit.RedisDSN = firstNonEmpty(os.Getenv("RATE_LIMIT_REDIS_DSN"), os.Getenv("REDIS_DSN"))
	cfg.Cache.RedisDSN = firstNonEmpty(os.Getenv("CACHE_REDIS_DSN"), os.Getenv("REDIS_DSN"))
	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.Events.Brokers = strings.Split(brokers, ",")
	}
	cfg.Events.IngestTopic = firstNonEmpty(os.Getenv("KAFKA_INGEST_TOPIC"), "graphrag.ingestion")
	cfg.Events.AuditTopic = firstNonEmpty(os.Getenv("KAFKA_AUDIT_TOPIC"), "graphrag.audit")
	cfg.Events.UsageTopic = firstNonEmpty(os.Getenv("KAFKA_USAGE_TOPIC"), "graphrag.usage")
	cfg.Events.StateTopic = firstNonEmpty(os.Getenv("KAFKA_STATE_TOPIC"), "graphrag.state")
	cfg.Events.ConsumerName = firstNonEmpty(os.Getenv("KAFKA_CONSUMER_GROUP"), "graphrag")

	if path := firstNonEmpty(os.Getenv("CONFIG_FILE"), "config.yaml"); path != "" {
		if err := mergeYAMLFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	mergeTenancy(&cfg.Tenancy, TenancyConfig{DefaultRRFK: 60, DefaultSimilarityEdge: 0.7, DefaultVectorWeight: 1.0, DefaultGraphWeight: 1.0})
	if cfg.Databases.Search.Backend == "" {
		cfg.Databases.Search.Backend = defaultBackend(cfg.Databases.DefaultDSN)
	}
	if cfg.Databases.Vector.Backend == "" {
		cfg.Databases.Vector.Backend = defaultBackend(cfg.Databases.DefaultDSN)
	}
	if cfg.Databases.Graph.Backend == "" {
		cfg.Databases.Graph.Backend = defaultBackend(cfg.Databases.DefaultDSN)
	}
	if cfg.Capacity.TotalSlots == 0 {
		cfg.Capacity.TotalSlots = 16
	}

	return cfg, nil
}

func defaultBackend(dsn string) string {
	if dsn != "" {
		return "auto"
	}
	return "memory"
}

// mergeYAMLFile fills in only the fields the environment left at their
// zero value; env vars always take precedence over the file.
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	mergeConfig(cfg, fromFile)
	log.Info().Str("path", path).Msg("merged configuration file")
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("invalid integer env var, using default")
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
