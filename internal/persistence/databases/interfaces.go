package databases

import "context"

// VectorPoint is a single chunk embedding to be upserted into a tenant's
// vector collection.
type VectorPoint struct {
	ChunkID    string
	DocumentID string
	TenantID   string
	Content    string
	Vector     []float32
	Sparse     map[uint32]float32
	Metadata   map[string]string
}

// VectorResult is a single hit from a vector search, carrying enough of the
// chunk row to answer a retrieval request without a second round-trip.
type VectorResult struct {
	ChunkID    string
	DocumentID string
	TenantID   string
	Score      float64
	Content    string
	Metadata   map[string]string
}

// SearchQuery describes a tenant-scoped similarity search. TenantID is
// mandatory; every implementation must AND it into the filter expression.
type SearchQuery struct {
	TenantID       string
	DocumentIDs    []string
	Vector         []float32
	Sparse         map[uint32]float32
	Limit          int
	ScoreThreshold float64
}

// VectorStore is the tenant-scoped dense/hybrid vector adapter described by
// the Vector Store Adapter component.
type VectorStore interface {
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, q SearchQuery) ([]VectorResult, error)
	// HybridSearch combines dense and sparse signals; backends that cannot do
	// so natively degrade to dense-only and must not error.
	HybridSearch(ctx context.Context, q SearchQuery) ([]VectorResult, error)
	GetChunks(ctx context.Context, tenantID string, chunkIDs []string) ([]VectorResult, error)
	DeleteByDocument(ctx context.Context, tenantID, documentID string) error
	DeleteByTenant(ctx context.Context, tenantID string) error
	Close() error
}

// GraphEntity is a named node merged into a tenant's property graph.
type GraphEntity struct {
	Name        string
	Type        string
	Description string
	TenantID    string
	Aliases     []string
	Community   string
}

// GraphRelation is a directed typed edge between two entities.
type GraphRelation struct {
	TenantID    string
	Source      string
	Target      string
	Type        string
	Description string
	Weight      float64
}

// GraphNeighbor is a single hop result from a beam-search traversal.
type GraphNeighbor struct {
	Name       string
	RelType    string
	Weight     float64
	EntityType string
}

// GraphStore is the typed property-graph port. Every write is scoped by
// tenant and every primitive is a MERGE (create-or-update), never a naive
// insert, so re-running ingestion is idempotent.
type GraphStore interface {
	UpsertDocument(ctx context.Context, tenantID, documentID, filename string) error
	UpsertChunk(ctx context.Context, tenantID, documentID, chunkID string, index int) error
	MergeEntity(ctx context.Context, e GraphEntity) error
	MergeMention(ctx context.Context, tenantID, chunkID, entityName string) error
	MergeRelation(ctx context.Context, r GraphRelation) error
	MergeSimilarity(ctx context.Context, tenantID, chunkA, chunkB string, score float64, rank int) error
	MergeCoOccurs(ctx context.Context, tenantID, entityA, entityB string, weight float64) error
	// Neighbors returns up to limit neighbors of an entity, excluding the
	// given relationship types, ordered by edge weight descending.
	Neighbors(ctx context.Context, tenantID, entityName string, excludeRelTypes []string, limit int) ([]GraphNeighbor, error)
	// MergeEntities relocates every edge incident on sources onto target,
	// concatenates aliases/descriptions, and removes the source nodes. Must
	// be transactional: partial merges are not observable.
	MergeEntities(ctx context.Context, tenantID string, sources []string, target string) error
	// MarkCommunityStale flags every community touched by entityNames for
	// recomputation, so a later community-detection pass knows which
	// clusters changed since it last ran instead of recomputing all of them.
	MarkCommunityStale(ctx context.Context, tenantID string, entityNames []string) error
	Close() error
}

// SearchResult represents a single hit from the full-text / sparse search
// backend, used as a secondary lexical signal alongside dense retrieval.
type SearchResult struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FullTextSearch defines the minimum interface for a pluggable lexical
// search backend, used to back sparse/hybrid candidate generation.
type FullTextSearch interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Manager holds concrete database backends resolved from configuration.
type Manager struct {
	Search FullTextSearch
	Vector VectorStore
	Graph  GraphStore
}

// Close attempts to close any underlying pools. It's a no-op for memory
// backends that don't implement io.Closer-like behavior.
func (m Manager) Close() {
	if c, ok := any(m.Search).(interface{ Close() }); ok {
		c.Close()
	}
	if m.Vector != nil {
		m.Vector.Close()
	}
	if m.Graph != nil {
		m.Graph.Close()
	}
}
