package config

// mergeConfig copies fields from file into cfg wherever cfg's own field is
// still at its zero value, so environment variables (applied before the
// YAML file is read) always win.
func mergeConfig(cfg *Config, file Config) {
	if cfg.Host == "" {
		cfg.Host = file.Host
	}
	if cfg.Port == 0 {
		cfg.Port = file.Port
	}

	mergeLLMClient(&cfg.LLMClient, file.LLMClient)
	if len(cfg.ProviderChain) == 0 {
		cfg.ProviderChain = file.ProviderChain
	}
	mergeEmbedding(&cfg.Embeddings, file.Embeddings)
	mergeEmbedding(&cfg.Reranker, file.Reranker)
	mergeDBConfig(&cfg.Databases, file.Databases)
	mergeS3(&cfg.Objects, file.Objects)

	if cfg.OTel.OTLP == "" {
		cfg.OTel.OTLP = file.OTel.OTLP
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = file.OTel.ServiceName
	}
	if cfg.OTel.ServiceVersion == "" {
		cfg.OTel.ServiceVersion = file.OTel.ServiceVersion
	}
	if cfg.OTel.Environment == "" {
		cfg.OTel.Environment = file.OTel.Environment
	}

	if cfg.Capacity.RedisDSN == "" {
		cfg.Capacity.RedisDSN = file.Capacity.RedisDSN
	}
	if cfg.Capacity.TotalSlots == 0 {
		cfg.Capacity = mergeCapacityFields(cfg.Capacity, file.Capacity)
	}
	if cfg.RateLimit.RedisDSN == "" {
		cfg.RateLimit.RedisDSN = file.RateLimit.RedisDSN
	}
	if cfg.RateLimit.DefaultLimit == 0 {
		cfg.RateLimit.DefaultLimit = file.RateLimit.DefaultLimit
	}
	if len(cfg.RateLimit.Categories) == 0 {
		cfg.RateLimit.Categories = file.RateLimit.Categories
	}
	if cfg.Cache.RedisDSN == "" {
		cfg.Cache.RedisDSN = file.Cache.RedisDSN
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = file.Cache.TTLSecs
	}
	mergeTenancy(&cfg.Tenancy, file.Tenancy)
	if len(cfg.Events.Brokers) == 0 {
		cfg.Events.Brokers = file.Events.Brokers
	}
	if cfg.Events.IngestTopic == "" {
		cfg.Events.IngestTopic = file.Events.IngestTopic
	}
	if cfg.Events.AuditTopic == "" {
		cfg.Events.AuditTopic = file.Events.AuditTopic
	}
	if cfg.Events.UsageTopic == "" {
		cfg.Events.UsageTopic = file.Events.UsageTopic
	}
	if cfg.Events.StateTopic == "" {
		cfg.Events.StateTopic = file.Events.StateTopic
	}
	if cfg.Events.ConsumerName == "" {
		cfg.Events.ConsumerName = file.Events.ConsumerName
	}
}

// mergeCapacityFields preserves a RedisDSN already resolved from the
// environment while filling the rest of the section from file.
func mergeCapacityFields(dst, src CapacityConfig) CapacityConfig {
	redisDSN := dst.RedisDSN
	dst = src
	if redisDSN != "" {
		dst.RedisDSN = redisDSN
	}
	return dst
}

func mergeLLMClient(dst *LLMClient, src LLMClient) {
	if dst.Provider == "" {
		dst.Provider = src.Provider
	}
	if dst.OpenAI.APIKey == "" {
		dst.OpenAI = src.OpenAI
	}
	if dst.Anthropic.APIKey == "" {
		dst.Anthropic = src.Anthropic
	}
	if dst.Google.APIKey == "" {
		dst.Google = src.Google
	}
}

func mergeEmbedding(dst *EmbeddingConfig, src EmbeddingConfig) {
	if dst.BaseURL == "" {
		dst.BaseURL = src.BaseURL
	}
	if dst.APIKey == "" {
		dst.APIKey = src.APIKey
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if dst.Dimensions == 0 {
		dst.Dimensions = src.Dimensions
	}
	if dst.APIHeader == "" {
		dst.APIHeader = src.APIHeader
	}
	if dst.Path == "" {
		dst.Path = src.Path
	}
	if dst.Timeout == 0 {
		dst.Timeout = src.Timeout
	}
}

func mergeDBBackend(dst *DBBackendConfig, src DBBackendConfig) {
	if dst.Backend == "" {
		dst.Backend = src.Backend
	}
	if dst.DSN == "" {
		dst.DSN = src.DSN
	}
	if dst.Dimensions == 0 {
		dst.Dimensions = src.Dimensions
	}
	if dst.Metric == "" {
		dst.Metric = src.Metric
	}
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.Password == "" {
		dst.Password = src.Password
	}
}

func mergeDBConfig(dst *DBConfig, src DBConfig) {
	if dst.DefaultDSN == "" {
		dst.DefaultDSN = src.DefaultDSN
	}
	mergeDBBackend(&dst.Search, src.Search)
	mergeDBBackend(&dst.Vector, src.Vector)
	mergeDBBackend(&dst.Graph, src.Graph)
}

func mergeS3(dst *S3Config, src S3Config) {
	if dst.Bucket == "" {
		dst.Bucket = src.Bucket
	}
	if dst.Region == "" {
		dst.Region = src.Region
	}
	if dst.Endpoint == "" {
		dst.Endpoint = src.Endpoint
	}
	if dst.AccessKey == "" {
		dst.AccessKey = src.AccessKey
	}
	if dst.SecretKey == "" {
		dst.SecretKey = src.SecretKey
	}
	if dst.Prefix == "" {
		dst.Prefix = src.Prefix
	}
	if !dst.UsePathStyle {
		dst.UsePathStyle = src.UsePathStyle
	}
	if dst.SSE.Mode == "" {
		dst.SSE = src.SSE
	}
}

func mergeTenancy(dst *TenancyConfig, src TenancyConfig) {
	if dst.DefaultRRFK == 0 {
		dst.DefaultRRFK = src.DefaultRRFK
	}
	if dst.DefaultSimilarityEdge == 0 {
		dst.DefaultSimilarityEdge = src.DefaultSimilarityEdge
	}
	if dst.DefaultVectorWeight == 0 {
		dst.DefaultVectorWeight = src.DefaultVectorWeight
	}
	if dst.DefaultGraphWeight == 0 {
		dst.DefaultGraphWeight = src.DefaultGraphWeight
	}
}
