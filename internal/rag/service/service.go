package service

import (
	"context"
	"encoding/json"
	"time"

	"manifold/internal/cache"
	"manifold/internal/llm"
	"manifold/internal/persistence/databases"
	"manifold/internal/rag/chunker"
	"manifold/internal/rag/embedder"
	"manifold/internal/rag/ingest"
	"manifold/internal/rag/retrieve"
	"manifold/internal/tenant"
)

// Service provides high-level RAG operations backed by Search, Vector, and Graph.
type Service struct {
	search databases.FullTextSearch
	vector databases.VectorStore
	graph  databases.GraphStore

	log     Logger
	metrics Metrics
	clock   Clock
	emb     embedder.Embedder
	rerank  retrieve.Reranker

	llmProvider   llm.Provider
	summaryStore  retrieve.CommunitySummaryStore
	resultCache   *cache.Cache
	tenantManager *tenant.Manager
	latency       *retrieve.LatencyBreaker
}

// New constructs a Service from a databases.Manager and optional observability.
func New(mgr databases.Manager, opts ...Option) *Service {
	s := &Service{
		search:  mgr.Search,
		vector:  mgr.Vector,
		graph:   mgr.Graph,
		log:     defaultLogger{},
		metrics: NoopMetrics{},
		clock:   SystemClock{},
		emb:     embedder.NewDeterministic(64, true, 0),
		rerank:  retrieve.NoopReranker{},
		latency: retrieve.NewLatencyBreaker(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures the Service during construction.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option { return func(s *Service) { s.log = l } }

// WithMetrics sets a custom metrics collector.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock sets a custom clock implementation.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithEmbedder sets a custom embedder implementation used during ingestion.
func WithEmbedder(e embedder.Embedder) Option { return func(s *Service) { s.emb = e } }

// WithReranker sets a reranker implementation used during retrieval.
func WithReranker(r retrieve.Reranker) Option { return func(s *Service) { s.rerank = r } }

// WithLLMProvider wires an llm.Provider used for contextual query rewrite
// and GLOBAL-mode community synthesis. Without one, both steps degrade to
// passthrough (rewrite is a no-op, GLOBAL falls back to BASIC).
func WithLLMProvider(p llm.Provider) Option { return func(s *Service) { s.llmProvider = p } }

// WithCommunitySummaries wires the cached community-summary source GLOBAL
// mode synthesizes over.
func WithCommunitySummaries(st retrieve.CommunitySummaryStore) Option {
	return func(s *Service) { s.summaryStore = st }
}

// WithResultCache wires the embedding/result cache fronting retrieval.
func WithResultCache(c *cache.Cache) Option { return func(s *Service) { s.resultCache = c } }

// WithTenantManager wires per-tenant tuned fusion weights and RRF constant.
func WithTenantManager(m *tenant.Manager) Option { return func(s *Service) { s.tenantManager = m } }

// Ingest performs chunk-centric ingestion: preprocessing, idempotency
// resolution, chunking, search indexing, and optional embedding and graph
// upserts.
func (s *Service) Ingest(ctx context.Context, in ingest.IngestRequest) (ingest.IngestResponse, error) {
	start := s.clock.Now()
	// Metrics: count documents
	s.metrics.IncCounter("ingestion_docs_total", map[string]string{"tenant": in.Tenant})
	// Step 1: preprocess (normalize, language, hash)
	t0 := s.clock.Now()
	pre, err := ingest.Preprocess(ctx, ingest.DefaultLanguageDetector{}, in)
	if err != nil {
		return ingest.IngestResponse{}, err
	}
	s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "preprocess", "tenant": in.Tenant})
	// Step 2: idempotency resolution (using Search as lookup proxy when possible)
	// We adapt the FullTextSearch interface to our DocumentLookup if it provides GetByID on doc hash key.
	// For now, rely on a nil lookup path which returns create if unknown.
	t0 = s.clock.Now()
	decision, err := ingest.ResolveIdempotency(ctx, nil, in.Tenant, in, pre)
	if err != nil {
		return ingest.IngestResponse{}, err
	}
	s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "idempotency", "tenant": in.Tenant})
	if decision.Action == "skip" {
		return ingest.IngestResponse{
			DocID:    decision.DocID,
			Version:  decision.Version,
			ChunkIDs: nil,
			Stats: ingest.IngestStats{
				NumChunks:     0,
				TotalTokens:   0,
				VectorUpserts: 0,
				Duration:      s.clock.Now().Sub(start),
			},
		}, nil
	}

	// Step 3: chunking
	ch := chunker.SimpleChunker{}
	t0 = s.clock.Now()
	chunks, err := ch.Chunk(pre.Text, in.Options.Chunking)
	if err != nil {
		return ingest.IngestResponse{}, err
	}
	s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "chunk", "tenant": in.Tenant})
	// Metrics: count chunks
	for i := 0; i < len(chunks); i++ {
		s.metrics.IncCounter("ingestion_chunks_total", map[string]string{"tenant": in.Tenant})
	}

	// Step 4: index into Search (documents and chunks) with fallback path
	t0 = s.clock.Now()
	if err := ingest.UpsertDocumentToSearch(ctx, s.search, in.ID, in, pre, decision.Version); err != nil {
		return ingest.IngestResponse{}, err
	}
	s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "search_document", "tenant": in.Tenant})
	// adapt chunker.Chunk to ingest.ChunkRecord
	crecs := make([]ingest.ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		crecs = append(crecs, ingest.ChunkRecord{Index: c.Index, Text: c.Text})
	}
	t0 = s.clock.Now()
	chunkIDs, err := ingest.UpsertChunksToSearch(ctx, s.search, in.ID, pre.Language, crecs, in, decision.Version)
	if err != nil {
		return ingest.IngestResponse{}, err
	}
	s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "search_chunks", "tenant": in.Tenant})

	// Step 5: embeddings (optional)
	vecUpserts := 0
	if in.Options.Embedding.Enabled && s.vector != nil {
		t0 = s.clock.Now()
		n, err := ingest.UpsertChunkEmbeddings(ctx, s.vector, s.emb, in.ID, pre.Language, crecs, in, decision.Version)
		if err != nil {
			return ingest.IngestResponse{}, err
		}
		vecUpserts = n
		s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "embedding", "tenant": in.Tenant})
	}

	// Step 6: graph upserts (optional)
	if in.Options.Graph.Enabled && s.graph != nil {
		t0 = s.clock.Now()
		if _, err := ingest.UpsertDocAndChunksGraph(ctx, s.graph, in.ID, pre, in, crecs, decision.Version); err != nil {
			return ingest.IngestResponse{}, err
		}
		s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "graph", "tenant": in.Tenant})
	}

	dur := s.clock.Now().Sub(start)
	s.metrics.ObserveHistogram("ingestion_stage_ms", float64(ms(dur)), map[string]string{"stage": "total", "tenant": in.Tenant})
	return ingest.IngestResponse{
		DocID:    in.ID,
		Version:  decision.Version,
		ChunkIDs: chunkIDs,
		Stats: ingest.IngestStats{
			NumChunks:     len(chunks),
			TotalTokens:   approxTokens(pre.Text),
			VectorUpserts: vecUpserts,
			Duration:      dur,
		},
		Warnings: nil,
	}, nil
}

// Retrieve executes the retrieval pipeline: contextual rewrite, filter
// parsing, SearchMode routing, cache lookups, mode-specific fan-out,
// weighted fusion, graph augmentation, and optional reranking, shedding the
// slowest stages when the latency breaker has tripped into degraded mode.
func (s *Service) Retrieve(ctx context.Context, q string, opt retrieve.RetrieveOptions) (retrieve.RetrieveResponse, error) {
	rStart := s.clock.Now()

	// Step 1: contextual rewrite.
	rewritten, err := retrieve.RewriteQuery(ctx, s.llmProvider, q, opt.History)
	if err != nil {
		s.log.Debug("contextual rewrite failed, using original query", map[string]any{"err": err.Error()})
		rewritten = q
	}

	// Step 2: filter parsing.
	filters := retrieve.ParseFilters(rewritten)
	opt.Filter = filters.ToMetadataFilter(opt.Filter)

	// Step 3: SearchMode routing.
	mode := retrieve.RouteSearchMode(filters.CleanText, filters, opt)

	// Tenant-tuned fusion weights/RRF constant, when a tenant manager is wired.
	vectorWeight, graphWeight := 0.6, 0.4
	if s.tenantManager != nil && opt.Tenant != "" {
		if tcfg, err := s.tenantManager.GetTenantConfig(ctx, opt.Tenant); err == nil {
			vectorWeight, graphWeight = tcfg.VectorWeight, tcfg.GraphWeight
			if tcfg.RRFK > 0 {
				opt.RRFK = tcfg.RRFK
			}
		}
	}
	weights := retrieve.DefaultModeWeights(mode, vectorWeight, graphWeight)

	// Degraded mode sheds reranking/graph augmentation first and extends the
	// result cache TTL so a shedding pipeline doesn't also thrash on misses.
	opt, ttlOverride := s.latency.ApplyDegradation(opt)

	// Step 5: result cache lookup, honored only when fresher than the
	// tenant's last_update_ts.
	if s.resultCache != nil && opt.Tenant != "" {
		if cached, ok := s.resultCache.GetResult(ctx, opt.Tenant, filters.CleanText, string(mode)); ok {
			var resp retrieve.RetrieveResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				return resp, nil
			}
		}
	}

	plan := retrieve.BuildQueryPlan(ctx, filters.CleanText, opt)

	// Step 4: embedding cache lookup (normalized lowercase query -> dense vector).
	var qvec []float32
	if s.vector != nil && s.emb != nil && plan.VecK > 0 {
		embedText := plan.Query
		if opt.Instruction != "" {
			embedText = "Instruct: " + opt.Instruction + "\n" + "Query: " + plan.Query
		}
		if s.resultCache != nil {
			if cachedVec, ok := s.resultCache.GetEmbedding(ctx, "default", embedText); ok {
				qvec = cachedVec
			}
		}
		if qvec == nil {
			emb, err := s.emb.EmbedBatch(ctx, []string{embedText})
			if err != nil {
				return retrieve.RetrieveResponse{}, err
			}
			if len(emb) > 0 {
				qvec = emb[0]
				if s.resultCache != nil {
					_ = s.resultCache.SetEmbedding(ctx, "default", embedText, qvec)
				}
			}
		}
	}

	// Step 6: mode-specific fan-out.
	var communitySignal []retrieve.RankedItem
	if mode == retrieve.ModeGlobal && s.summaryStore != nil {
		signal, err := retrieve.SynthesizeGlobal(ctx, s.summaryStore, s.llmProvider, opt.Tenant, filters.CleanText)
		if err != nil {
			s.log.Debug("global synthesis failed, falling back to basic", map[string]any{"err": err.Error()})
		} else {
			communitySignal = signal
		}
	}

	// Run parallel candidates
	ftRes, vecRes, diag, err := retrieve.ParallelCandidates(ctx, s.search, s.vector, plan, qvec)
	if err != nil {
		return retrieve.RetrieveResponse{}, err
	}
	// Metrics: candidate timings and counts
	s.metrics.ObserveHistogram("retrieval_stage_ms", float64(ms(diag.FtLatency)), map[string]string{"stage": "fts", "tenant": plan.Tenant})
	s.metrics.ObserveHistogram("retrieval_stage_ms", float64(ms(diag.VecLatency)), map[string]string{"stage": "vec", "tenant": plan.Tenant})
	for i := 0; i < diag.FtCount; i++ {
		s.metrics.IncCounter("retrieval_candidates", map[string]string{"type": "fts", "tenant": plan.Tenant})
	}
	for i := 0; i < diag.VecCount; i++ {
		s.metrics.IncCounter("retrieval_candidates", map[string]string{"type": "vec", "tenant": plan.Tenant})
	}

	// Fusion: use weighted RRF (with optional diversification) when requested
	// or when a community synthesis signal is present, else simple concat.
	var items []retrieve.RetrievedItem
	var fusionMS int64
	switch {
	case len(communitySignal) > 0:
		t0 := s.clock.Now()
		fused := retrieve.FuseGraphAndCommunitySignals(ftRes, vecRes, nil, communitySignal, weights, opt)
		items = retrieve.FusedToRetrievedItems(fused, opt.Diversify, opt.K)
		fusionMS = ms(s.clock.Now().Sub(t0))
		s.metrics.ObserveHistogram("retrieval_stage_ms", float64(fusionMS), map[string]string{"stage": "fusion", "tenant": plan.Tenant})
	case opt.UseRRF:
		if weights.FullText+weights.Vector > 0 {
			opt.Alpha = weights.FullText / (weights.FullText + weights.Vector)
		}
		t0 := s.clock.Now()
		items = retrieve.FuseAndDiversify(ftRes, vecRes, plan, opt)
		fusionMS = ms(s.clock.Now().Sub(t0))
		s.metrics.ObserveHistogram("retrieval_stage_ms", float64(fusionMS), map[string]string{"stage": "fusion", "tenant": plan.Tenant})
	default:
		items = make([]retrieve.RetrievedItem, 0, len(ftRes)+len(vecRes))
		for _, r := range ftRes {
			items = append(items, retrieve.RetrievedItem{ID: r.ID, Score: r.Score, Snippet: r.Snippet, Text: r.Text, Metadata: r.Metadata})
		}
		for _, r := range vecRes {
			items = append(items, retrieve.RetrievedItem{ID: r.ChunkID, Score: r.Score, Text: r.Content, Metadata: r.Metadata})
		}
		// Cap to K
		k := opt.K
		if k <= 0 {
			k = 10
		}
		if len(items) > k {
			items = items[:k]
		}
	}

	// DRIFT mode re-expands the frontier through the graph every round with
	// a shrinking radius until a round adds nothing new, rather than the
	// single-hop expansion other modes get from AssembleResults. Skipped in
	// degraded mode, same as plain graph augmentation.
	var driftDiag retrieve.DriftDiagnostics
	if mode == retrieve.ModeDrift && opt.GraphAugment && s.graph != nil {
		t0 := s.clock.Now()
		items, driftDiag = retrieve.DriftExpand(ctx, s.graph, plan.Tenant, items, retrieve.DriftOptions{})
		s.metrics.ObserveHistogram("retrieval_stage_ms", float64(ms(s.clock.Now().Sub(t0))), map[string]string{"stage": "drift", "tenant": plan.Tenant})
	}

	// Graph augment + optional rerank + final prune
	items, addDbg, err := retrieve.AssembleResults(ctx, s.graph, s.rerank, plan, opt, items)
	if err != nil {
		return retrieve.RetrieveResponse{}, err
	}
	// Metrics: graph and rerank durations if present
	if gv, ok := addDbg["graph"]; ok {
		if gmap, ok := gv.(map[string]any); ok {
			if msVal, ok := gmap["ms"].(int64); ok {
				s.metrics.ObserveHistogram("retrieval_stage_ms", float64(msVal), map[string]string{"stage": "graph", "tenant": plan.Tenant})
			}
		}
	}
	if rv, ok := addDbg["rerank_ms"].(int64); ok {
		s.metrics.ObserveHistogram("retrieval_stage_ms", float64(rv), map[string]string{"stage": "rerank", "tenant": plan.Tenant})
	}

	// Package results: snippets, optional full text, doc metadata, and explanations
	pkgStart := s.clock.Now()
	if opt.IncludeSnippet {
		items = retrieve.GenerateSnippets(ctx, s.search, items, retrieve.SnippetOptions{Lang: plan.Lang, Query: plan.Query})
	}
	if opt.IncludeText && s.search != nil {
		// ensure Text present for items lacking it
		type byIDProvider interface {
			GetByID(ctx context.Context, id string) (databases.SearchResult, bool, error)
		}
		if gb, ok := s.search.(byIDProvider); ok {
			for i := range items {
				if items[i].Text != "" {
					continue
				}
				if doc, ok, _ := gb.GetByID(ctx, items[i].ID); ok {
					items[i].Text = doc.Text
				}
			}
		}
	}
	// Attach doc metadata (title, url)
	items = retrieve.AttachDocMetadata(ctx, s.search, items)

	// Add basic per-item explanations when available from fusion diagnostics in metadata
	for i := range items {
		if items[i].Explanation == nil {
			items[i].Explanation = map[string]any{}
		}
		// Carry doc_id for transparency
		if items[i].DocID == "" {
			items[i].DocID = retrieve.DeriveDocIDPublic(items[i].ID, items[i].Metadata)
		}
	}

	pkgMS := ms(s.clock.Now().Sub(pkgStart))
	s.metrics.ObserveHistogram("retrieval_stage_ms", float64(pkgMS), map[string]string{"stage": "package", "tenant": plan.Tenant})
	// Results counter
	for i := 0; i < len(items); i++ {
		s.metrics.IncCounter("retrieval_results_total", map[string]string{"tenant": plan.Tenant})
	}
	totalMS := ms(s.clock.Now().Sub(rStart))
	s.metrics.ObserveHistogram("retrieval_stage_ms", float64(totalMS), map[string]string{"stage": "total", "tenant": plan.Tenant})
	debug := map[string]any{
		"plan":        map[string]any{"lang": plan.Lang, "ftK": plan.FtK, "vecK": plan.VecK},
		"diagnostics": map[string]any{"ft_ms": ms(diag.FtLatency), "vec_ms": ms(diag.VecLatency), "ft_n": diag.FtCount, "vec_n": diag.VecCount, "package_ms": pkgMS, "fusion_ms": fusionMS, "total_ms": totalMS},
		"mode":        string(mode),
	}
	if driftDiag.Iterations > 0 {
		debug["drift"] = map[string]any{"iterations": driftDiag.Iterations, "expanded": driftDiag.Expanded}
	}
	// Integrate addDbg stage timings into diagnostics when available
	if dm, ok := debug["diagnostics"].(map[string]any); ok {
		if gv, ok := addDbg["graph"]; ok {
			if gmap, ok := gv.(map[string]any); ok {
				if msVal, ok := gmap["ms"]; ok {
					dm["graph_ms"] = msVal
				}
			}
		}
		if rv, ok := addDbg["rerank_ms"]; ok {
			dm["rerank_ms"] = rv
		}
	}
	for k, v := range addDbg {
		debug[k] = v
	}
	resp := retrieve.RetrieveResponse{Query: plan.Query, Items: items, Debug: debug}

	// Step 10: cache the response, then feed this request's end-to-end
	// latency back into the degraded-mode breaker for the next request.
	if s.resultCache != nil && opt.Tenant != "" {
		if payload, err := json.Marshal(resp); err == nil {
			if err := s.resultCache.SetResultTTL(ctx, opt.Tenant, filters.CleanText, string(mode), payload, ttlOverride); err != nil {
				s.log.Debug("result cache write failed", map[string]any{"err": err.Error()})
			}
		}
	}
	s.latency.Observe(s.clock.Now().Sub(rStart))

	return resp, nil
}

// defaultLogger is a minimal internal logger that drops logs.
type defaultLogger struct{}

func (defaultLogger) Info(string, map[string]any)  {}
func (defaultLogger) Error(string, map[string]any) {}
func (defaultLogger) Debug(string, map[string]any) {}

// approxTokens uses a rough 4 char/token heuristic for metrics only.
func approxTokens(s string) int { return (len(s) + 3) / 4 }

func ms(d time.Duration) int64 { return int64(d / time.Millisecond) }
