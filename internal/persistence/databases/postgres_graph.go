package databases

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgGraph is the lightweight alternative GraphStore backend for
// single-binary deployments without a Neo4j instance. It implements the
// same MERGE-equivalent semantics as neo4jGraph over a handful of
// Postgres tables, trading real Cypher traversal for simple joins.
type pgGraph struct{ pool *pgxpool.Pool }

// NewPostgresGraph returns a Postgres-table-backed GraphStore.
func NewPostgresGraph(pool *pgxpool.Pool) GraphStore {
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS graph_documents (
			tenant_id TEXT NOT NULL, document_id TEXT NOT NULL, filename TEXT NOT NULL,
			PRIMARY KEY (tenant_id, document_id))`,
		`CREATE TABLE IF NOT EXISTS graph_chunks (
			tenant_id TEXT NOT NULL, document_id TEXT NOT NULL, chunk_id TEXT NOT NULL, idx INT NOT NULL,
			PRIMARY KEY (tenant_id, chunk_id))`,
		`CREATE TABLE IF NOT EXISTS graph_entities (
			tenant_id TEXT NOT NULL, name TEXT NOT NULL, type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '', aliases TEXT[] NOT NULL DEFAULT '{}',
			community TEXT NOT NULL DEFAULT '', created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, name))`,
		`CREATE TABLE IF NOT EXISTS graph_mentions (
			tenant_id TEXT NOT NULL, chunk_id TEXT NOT NULL, entity_name TEXT NOT NULL,
			PRIMARY KEY (tenant_id, chunk_id, entity_name))`,
		`CREATE TABLE IF NOT EXISTS graph_relations (
			tenant_id TEXT NOT NULL, source TEXT NOT NULL, target TEXT NOT NULL, rel_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '', weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, source, target, rel_type))`,
		`CREATE TABLE IF NOT EXISTS graph_similar (
			tenant_id TEXT NOT NULL, chunk_a TEXT NOT NULL, chunk_b TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL, rank INT NOT NULL,
			PRIMARY KEY (tenant_id, chunk_a, chunk_b))`,
		`CREATE TABLE IF NOT EXISTS graph_cooccurs (
			tenant_id TEXT NOT NULL, entity_a TEXT NOT NULL, entity_b TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, entity_a, entity_b))`,
		`CREATE TABLE IF NOT EXISTS graph_community_stale (
			tenant_id TEXT NOT NULL, community TEXT NOT NULL, marked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, community))`,
	}
	for _, s := range stmts {
		_, _ = pool.Exec(ctx, s)
	}
	return &pgGraph{pool: pool}
}

func (g *pgGraph) UpsertDocument(ctx context.Context, tenantID, documentID, filename string) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_documents(tenant_id, document_id, filename) VALUES($1,$2,$3)
ON CONFLICT (tenant_id, document_id) DO NOTHING`, tenantID, documentID, filename)
	return err
}

func (g *pgGraph) UpsertChunk(ctx context.Context, tenantID, documentID, chunkID string, index int) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_chunks(tenant_id, document_id, chunk_id, idx) VALUES($1,$2,$3,$4)
ON CONFLICT (tenant_id, chunk_id) DO UPDATE SET idx=EXCLUDED.idx`, tenantID, documentID, chunkID, index)
	return err
}

func (g *pgGraph) MergeEntity(ctx context.Context, e GraphEntity) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_entities(tenant_id, name, type, description, aliases, community)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, name) DO UPDATE SET
  type = CASE WHEN graph_entities.type = '' THEN EXCLUDED.type ELSE graph_entities.type END,
  description = CASE WHEN graph_entities.description = '' THEN EXCLUDED.description ELSE graph_entities.description END
`, e.TenantID, e.Name, e.Type, e.Description, e.Aliases, e.Community)
	return err
}

func (g *pgGraph) MergeMention(ctx context.Context, tenantID, chunkID, entityName string) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_mentions(tenant_id, chunk_id, entity_name) VALUES($1,$2,$3)
ON CONFLICT DO NOTHING`, tenantID, chunkID, entityName)
	return err
}

func (g *pgGraph) MergeRelation(ctx context.Context, r GraphRelation) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_relations(tenant_id, source, target, rel_type, description, weight)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, source, target, rel_type) DO UPDATE SET weight=EXCLUDED.weight
`, r.TenantID, r.Source, r.Target, r.Type, r.Description, r.Weight)
	return err
}

func (g *pgGraph) MergeSimilarity(ctx context.Context, tenantID, chunkA, chunkB string, score float64, rank int) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_similar(tenant_id, chunk_a, chunk_b, score, rank) VALUES($1,$2,$3,$4,$5)
ON CONFLICT (tenant_id, chunk_a, chunk_b) DO UPDATE SET score=EXCLUDED.score, rank=EXCLUDED.rank
`, tenantID, chunkA, chunkB, score, rank)
	return err
}

func (g *pgGraph) MergeCoOccurs(ctx context.Context, tenantID, entityA, entityB string, weight float64) error {
	a, b := entityA, entityB
	if b < a {
		a, b = b, a
	}
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_cooccurs(tenant_id, entity_a, entity_b, weight) VALUES($1,$2,$3,$4)
ON CONFLICT (tenant_id, entity_a, entity_b) DO UPDATE SET weight=graph_cooccurs.weight+EXCLUDED.weight
`, tenantID, a, b, weight)
	return err
}

func (g *pgGraph) Neighbors(ctx context.Context, tenantID, entityName string, excludeRelTypes []string, limit int) ([]GraphNeighbor, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := g.pool.Query(ctx, `
SELECT r.target, r.rel_type, r.weight, COALESCE(e.type, '')
FROM graph_relations r
LEFT JOIN graph_entities e ON e.tenant_id = r.tenant_id AND e.name = r.target
WHERE r.tenant_id = $1 AND r.source = $2 AND NOT (r.rel_type = ANY($3))
ORDER BY r.weight DESC LIMIT $4
`, tenantID, entityName, excludeRelTypes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]GraphNeighbor, 0, limit)
	for rows.Next() {
		var n GraphNeighbor
		if err := rows.Scan(&n.Name, &n.RelType, &n.Weight, &n.EntityType); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MergeEntities relocates every edge incident on sources onto target inside
// a single transaction, concatenates aliases, and removes the source rows.
func (g *pgGraph) MergeEntities(ctx context.Context, tenantID string, sources []string, target string) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
UPDATE graph_relations SET source=$1 WHERE tenant_id=$2 AND source = ANY($3) AND target <> $1
`, target, tenantID, sources); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE graph_relations SET target=$1 WHERE tenant_id=$2 AND target = ANY($3) AND source <> $1
`, target, tenantID, sources); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM graph_relations WHERE tenant_id=$1 AND source=$2 AND target=$2
`, tenantID, target); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE graph_mentions SET entity_name=$1 WHERE tenant_id=$2 AND entity_name = ANY($3)
`, target, tenantID, sources); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE graph_entities SET aliases = array_cat(aliases, $3),
  description = description || CASE WHEN description <> '' THEN E'\n' ELSE '' END ||
    COALESCE((SELECT string_agg(description, E'\n') FROM graph_entities WHERE tenant_id=$2 AND name = ANY($3) AND description <> ''), '')
WHERE tenant_id=$2 AND name=$1
`, target, tenantID, sources); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM graph_entities WHERE tenant_id=$1 AND name = ANY($2) AND name <> $3
`, tenantID, sources, target); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkCommunityStale flags every community touched by entityNames for
// recomputation by looking up each entity's current community and
// upserting a marker row, rather than eagerly recomputing communities on
// every entity write.
func (g *pgGraph) MarkCommunityStale(ctx context.Context, tenantID string, entityNames []string) error {
	_, err := g.pool.Exec(ctx, `
INSERT INTO graph_community_stale(tenant_id, community, marked_at)
SELECT $1, community, now() FROM graph_entities
WHERE tenant_id = $1 AND name = ANY($2) AND community <> ''
ON CONFLICT (tenant_id, community) DO UPDATE SET marked_at = now()`, tenantID, entityNames)
	return err
}

func (g *pgGraph) Close() error {
	g.pool.Close()
	return nil
}
