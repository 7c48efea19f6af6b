package databases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant only allows UUIDs and positive integers as point IDs. So we
// generate a deterministic UUID based on the chunk id and store the
// original id in the payload for recovery on read.
const payloadChunkIDField = "_original_chunk_id"

type qdrantVector struct {
	client        *qdrant.Client
	collectionFor func(tenantID string) string
	dimension     int
	metric        string // cosine|l2|euclidean|ip|dot|manhattan
}

// NewQdrantVector creates a new Qdrant-backed VectorStore. The Go client
// uses Qdrant's gRPC API, which runs on port 6334 by default.
//
// Collections are tenant-scoped (see TenantCollectionName) and created
// lazily on first use per tenant.
func NewQdrantVector(dsn string, dimensions int, metric string) (VectorStore, error) {
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse Qdrant DSN: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsedURL.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in Qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsedURL.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsedURL.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create Qdrant client: %w", err)
	}
	return &qdrantVector{
		client:        client,
		collectionFor: TenantCollectionName,
		dimension:     dimensions,
		metric:        strings.ToLower(strings.TrimSpace(metric)),
	}, nil
}

// TenantCollectionName maps a tenant id to its vector collection name per
// the Vector Store Adapter's tenant-scoped collection rule.
func TenantCollectionName(tenantID string) string {
	return "amber_" + strings.ReplaceAll(tenantID, "-", "_")
}

func (q *qdrantVector) ensureCollection(ctx context.Context, collection string) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(chunkID string) *qdrant.PointId {
	uuidStr := chunkID
	if _, err := uuid.Parse(chunkID); err != nil {
		uuidStr = uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
	}
	return qdrant.NewIDUUID(uuidStr)
}

func truncateContent(s string) string {
	const maxLen = 65530
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func (q *qdrantVector) Upsert(ctx context.Context, points []VectorPoint) error {
	byCollection := map[string][]*qdrant.PointStruct{}
	for _, p := range points {
		pointID := pointIDFor(p.ChunkID)
		md := make(map[string]any, len(p.Metadata)+4)
		for k, v := range p.Metadata {
			md[k] = v
		}
		md["document_id"] = p.DocumentID
		md["tenant_id"] = p.TenantID
		md["content"] = truncateContent(p.Content)
		md[payloadChunkIDField] = p.ChunkID
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		col := q.collectionFor(p.TenantID)
		byCollection[col] = append(byCollection[col], &qdrant.PointStruct{
			Id:      pointID,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(md),
		})
	}
	for col, pts := range byCollection {
		if err := q.ensureCollection(ctx, col); err != nil {
			return err
		}
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: col, Points: pts}); err != nil {
			return fmt.Errorf("qdrant upsert into %s: %w", col, err)
		}
	}
	return nil
}

func hitToResult(hit *qdrant.ScoredPoint) VectorResult {
	chunkID := hit.Id.GetUuid()
	if chunkID == "" {
		chunkID = hit.Id.String()
	}
	md := make(map[string]string)
	var docID, tenantID, content string
	if hit.Payload != nil {
		for k, v := range hit.Payload {
			switch k {
			case payloadChunkIDField:
				chunkID = v.GetStringValue()
			case "document_id":
				docID = v.GetStringValue()
			case "tenant_id":
				tenantID = v.GetStringValue()
			case "content":
				content = v.GetStringValue()
			default:
				md[k] = v.GetStringValue()
			}
		}
	}
	return VectorResult{
		ChunkID:    chunkID,
		DocumentID: docID,
		TenantID:   tenantID,
		Score:      float64(hit.Score),
		Content:    content,
		Metadata:   md,
	}
}

func (q *qdrantVector) Search(ctx context.Context, sq SearchQuery) ([]VectorResult, error) {
	col := q.collectionFor(sq.TenantID)
	limit := uint64(sq.Limit)
	if limit == 0 {
		limit = 10
	}
	must := []*qdrant.Condition{qdrant.NewMatch("tenant_id", sq.TenantID)}
	if len(sq.DocumentIDs) > 0 {
		should := make([]*qdrant.Condition, 0, len(sq.DocumentIDs))
		for _, d := range sq.DocumentIDs {
			should = append(should, qdrant.NewMatch("document_id", d))
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{Should: should}},
		})
	}
	vec := make([]float32, len(sq.Vector))
	copy(vec, sq.Vector)
	searchResult, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: col,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query %s: %w", col, err)
	}
	out := make([]VectorResult, 0, len(searchResult))
	for _, hit := range searchResult {
		if float64(hit.Score) < sq.ScoreThreshold {
			continue
		}
		out = append(out, hitToResult(hit))
	}
	return out, nil
}

// HybridSearch runs the dense Search only: this adapter's bootstrap path
// provisions a dense collection, and the query's sparse vector is ignored,
// per the port's "best-effort" contract.
func (q *qdrantVector) HybridSearch(ctx context.Context, sq SearchQuery) ([]VectorResult, error) {
	return q.Search(ctx, sq)
}

func (q *qdrantVector) GetChunks(ctx context.Context, tenantID string, chunkIDs []string) ([]VectorResult, error) {
	col := q.collectionFor(tenantID)
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, pointIDFor(id))
	}
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: col,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get %s: %w", col, err)
	}
	out := make([]VectorResult, 0, len(points))
	for _, p := range points {
		md := make(map[string]string)
		chunkID := p.Id.GetUuid()
		var docID, tID, content string
		for k, v := range p.Payload {
			switch k {
			case payloadChunkIDField:
				chunkID = v.GetStringValue()
			case "document_id":
				docID = v.GetStringValue()
			case "tenant_id":
				tID = v.GetStringValue()
			case "content":
				content = v.GetStringValue()
			default:
				md[k] = v.GetStringValue()
			}
		}
		out = append(out, VectorResult{ChunkID: chunkID, DocumentID: docID, TenantID: tID, Content: content, Metadata: md})
	}
	return out, nil
}

func (q *qdrantVector) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	col := q.collectionFor(tenantID)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: col,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("tenant_id", tenantID),
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	return err
}

func (q *qdrantVector) DeleteByTenant(ctx context.Context, tenantID string) error {
	col := q.collectionFor(tenantID)
	return q.client.DeleteCollection(ctx, col)
}

func (q *qdrantVector) Close() error {
	return q.client.Close()
}
