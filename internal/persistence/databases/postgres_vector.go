package databases

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgVector struct {
	pool       *pgxpool.Pool
	dimensions int
	metric     string // cosine|l2|ip
}

// NewPostgresVector returns a pgvector-backed VectorStore, the alternative
// single-binary-deployment backend to Qdrant. All rows carry tenant_id and
// document_id columns so every query can AND in tenant isolation.
func NewPostgresVector(pool *pgxpool.Pool, dimensions int, metric string) VectorStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunk_embeddings (
  chunk_id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);
`, vecType))
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS chunk_embeddings_tenant ON chunk_embeddings(tenant_id)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS chunk_embeddings_doc ON chunk_embeddings(tenant_id, document_id)`)
	return &pgVector{pool: pool, dimensions: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
}

func (p *pgVector) Upsert(ctx context.Context, points []VectorPoint) error {
	for _, pt := range points {
		vecLit := toVectorLiteral(pt.Vector)
		if _, err := p.pool.Exec(ctx, `
INSERT INTO chunk_embeddings(chunk_id, document_id, tenant_id, content, vec, metadata)
VALUES($1,$2,$3,$4,$5::vector,$6)
ON CONFLICT (chunk_id) DO UPDATE SET
  document_id=EXCLUDED.document_id, tenant_id=EXCLUDED.tenant_id,
  content=EXCLUDED.content, vec=EXCLUDED.vec, metadata=EXCLUDED.metadata
`, pt.ChunkID, pt.DocumentID, pt.TenantID, truncateContent(pt.Content), vecLit, mapToJSON(pt.Metadata)); err != nil {
			return fmt.Errorf("pgvector upsert %s: %w", pt.ChunkID, err)
		}
	}
	return nil
}

func (p *pgVector) distanceExpr() (op, scoreExpr string) {
	switch p.metric {
	case "l2", "euclidean":
		return "<->", "-(vec <-> $1::vector)"
	case "ip", "dot":
		return "<#>", "-(vec <#> $1::vector)"
	default:
		return "<=>", "1 - (vec <=> $1::vector)"
	}
}

func (p *pgVector) Search(ctx context.Context, sq SearchQuery) ([]VectorResult, error) {
	limit := sq.Limit
	if limit <= 0 {
		limit = 10
	}
	vecLit := toVectorLiteral(sq.Vector)
	op, scoreExpr := p.distanceExpr()
	where := "WHERE tenant_id = $3"
	args := []any{vecLit, limit, sq.TenantID}
	if len(sq.DocumentIDs) > 0 {
		where += " AND document_id = ANY($4)"
		args = append(args, sq.DocumentIDs)
	}
	query := fmt.Sprintf(`SELECT chunk_id, document_id, tenant_id, content, %s AS score, metadata
FROM chunk_embeddings %s ORDER BY vec %s $1::vector LIMIT $2`, scoreExpr, where, op)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		var md map[string]string
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.TenantID, &r.Content, &r.Score, &md); err != nil {
			return nil, err
		}
		if r.Score < sq.ScoreThreshold {
			continue
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

// HybridSearch has no native sparse support over plain pgvector; it
// degrades to dense-only per the port's best-effort contract.
func (p *pgVector) HybridSearch(ctx context.Context, sq SearchQuery) ([]VectorResult, error) {
	return p.Search(ctx, sq)
}

func (p *pgVector) GetChunks(ctx context.Context, tenantID string, chunkIDs []string) ([]VectorResult, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
SELECT chunk_id, document_id, tenant_id, content, metadata
FROM chunk_embeddings WHERE tenant_id=$1 AND chunk_id = ANY($2)
`, tenantID, chunkIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]VectorResult, 0, len(chunkIDs))
	for rows.Next() {
		var r VectorResult
		var md map[string]string
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.TenantID, &r.Content, &md); err != nil {
			return nil, err
		}
		r.Metadata = md
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *pgVector) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE tenant_id=$1 AND document_id=$2`, tenantID, documentID)
	return err
}

func (p *pgVector) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE tenant_id=$1`, tenantID)
	return err
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b := strings.Builder{}
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(fmt.Sprintf("%g", x))
	}
	b.WriteByte(']')
	return b.String()
}
