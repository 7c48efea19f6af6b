package databases

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// neo4jGraph is the primary GraphStore backend: every primitive below is a
// parameterized Cypher MERGE, giving real graph traversal semantics (node
// labels, typed relationships, pattern matching) that the Postgres-table
// adapter only simulates over flat rows.
type neo4jGraph struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jGraph dials a Neo4j instance and returns a GraphStore backed by
// it. uri follows the neo4j://, neo4j+s://, or bolt:// scheme.
func NewNeo4jGraph(ctx context.Context, uri, username, password string) (GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &neo4jGraph{driver: driver}, nil
}

func (g *neo4jGraph) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

func (g *neo4jGraph) exec(ctx context.Context, cypher string, params map[string]any) error {
	sess := g.session(ctx)
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	return err
}

func (g *neo4jGraph) UpsertDocument(ctx context.Context, tenantID, documentID, filename string) error {
	return g.exec(ctx, `
MERGE (d:Document {tenantId: $tenantId, id: $documentId})
SET d.filename = $filename`, map[string]any{
		"tenantId": tenantID, "documentId": documentID, "filename": filename,
	})
}

func (g *neo4jGraph) UpsertChunk(ctx context.Context, tenantID, documentID, chunkID string, index int) error {
	return g.exec(ctx, `
MATCH (d:Document {tenantId: $tenantId, id: $documentId})
MERGE (c:Chunk {tenantId: $tenantId, id: $chunkId})
SET c.idx = $idx
MERGE (d)-[:HAS_CHUNK]->(c)`, map[string]any{
		"tenantId": tenantID, "documentId": documentID, "chunkId": chunkID, "idx": index,
	})
}

func (g *neo4jGraph) MergeEntity(ctx context.Context, e GraphEntity) error {
	return g.exec(ctx, `
MERGE (n:Entity {tenantId: $tenantId, name: $name})
ON CREATE SET n.type = $type, n.description = $description, n.aliases = $aliases, n.community = $community
ON MATCH SET
  n.type = CASE WHEN n.type IS NULL OR n.type = '' THEN $type ELSE n.type END,
  n.description = CASE WHEN n.description IS NULL OR n.description = '' THEN $description ELSE n.description END`,
		map[string]any{
			"tenantId": e.TenantID, "name": e.Name, "type": e.Type,
			"description": e.Description, "aliases": e.Aliases, "community": e.Community,
		})
}

func (g *neo4jGraph) MergeMention(ctx context.Context, tenantID, chunkID, entityName string) error {
	return g.exec(ctx, `
MATCH (c:Chunk {tenantId: $tenantId, id: $chunkId})
MERGE (e:Entity {tenantId: $tenantId, name: $entityName})
MERGE (c)-[:MENTIONS]->(e)`, map[string]any{
		"tenantId": tenantID, "chunkId": chunkID, "entityName": entityName,
	})
}

func (g *neo4jGraph) MergeRelation(ctx context.Context, r GraphRelation) error {
	return g.exec(ctx, `
MERGE (s:Entity {tenantId: $tenantId, name: $source})
MERGE (t:Entity {tenantId: $tenantId, name: $target})
MERGE (s)-[rel:RELATES {type: $relType}]->(t)
SET rel.weight = $weight, rel.description = $description`, map[string]any{
		"tenantId": r.TenantID, "source": r.Source, "target": r.Target,
		"relType": r.Type, "weight": r.Weight, "description": r.Description,
	})
}

func (g *neo4jGraph) MergeSimilarity(ctx context.Context, tenantID, chunkA, chunkB string, score float64, rank int) error {
	return g.exec(ctx, `
MATCH (a:Chunk {tenantId: $tenantId, id: $chunkA})
MATCH (b:Chunk {tenantId: $tenantId, id: $chunkB})
MERGE (a)-[rel:SIMILAR_TO]->(b)
SET rel.score = $score, rel.rank = $rank`, map[string]any{
		"tenantId": tenantID, "chunkA": chunkA, "chunkB": chunkB, "score": score, "rank": rank,
	})
}

func (g *neo4jGraph) MergeCoOccurs(ctx context.Context, tenantID, entityA, entityB string, weight float64) error {
	a, b := entityA, entityB
	if b < a {
		a, b = b, a
	}
	return g.exec(ctx, `
MERGE (a:Entity {tenantId: $tenantId, name: $entityA})
MERGE (b:Entity {tenantId: $tenantId, name: $entityB})
MERGE (a)-[rel:CO_OCCURS]-(b)
SET rel.weight = coalesce(rel.weight, 0) + $weight`, map[string]any{
		"tenantId": tenantID, "entityA": a, "entityB": b, "weight": weight,
	})
}

func (g *neo4jGraph) Neighbors(ctx context.Context, tenantID, entityName string, excludeRelTypes []string, limit int) ([]GraphNeighbor, error) {
	if limit <= 0 {
		limit = 10
	}
	sess := g.session(ctx)
	defer sess.Close(ctx)
	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rows, err := tx.Run(ctx, `
MATCH (s:Entity {tenantId: $tenantId, name: $name})-[rel:RELATES]->(t:Entity)
WHERE NOT rel.type IN $exclude
RETURN t.name AS name, rel.type AS relType, rel.weight AS weight, coalesce(t.type, '') AS entityType
ORDER BY rel.weight DESC
LIMIT $limit`, map[string]any{
			"tenantId": tenantID, "name": entityName, "exclude": excludeRelTypes, "limit": limit,
		})
		if err != nil {
			return nil, err
		}
		var out []GraphNeighbor
		for rows.Next(ctx) {
			rec := rows.Record()
			name, _ := rec.Get("name")
			relType, _ := rec.Get("relType")
			weight, _ := rec.Get("weight")
			entityType, _ := rec.Get("entityType")
			w, _ := weight.(float64)
			out = append(out, GraphNeighbor{
				Name: fmt.Sprint(name), RelType: fmt.Sprint(relType), Weight: w, EntityType: fmt.Sprint(entityType),
			})
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	neighbors, _ := result.([]GraphNeighbor)
	return neighbors, nil
}

// MergeEntities relocates every edge incident on sources onto target and
// removes the source nodes, all inside one write transaction so the
// relocation is never partially observable.
func (g *neo4jGraph) MergeEntities(ctx context.Context, tenantID string, sources []string, target string) error {
	sess := g.session(ctx)
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
MERGE (t:Entity {tenantId: $tenantId, name: $target})
WITH t
MATCH (s:Entity {tenantId: $tenantId})
WHERE s.name IN $sources AND s.name <> $target
SET t.aliases = coalesce(t.aliases, []) + [s.name] + coalesce(s.aliases, []),
    t.description = CASE WHEN s.description IS NOT NULL AND s.description <> ''
      THEN coalesce(t.description, '') + CASE WHEN coalesce(t.description,'') <> '' THEN '\n' ELSE '' END + s.description
      ELSE t.description END
`, map[string]any{"tenantId": tenantID, "target": target, "sources": sources}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `
MATCH (s:Entity {tenantId: $tenantId})-[rel:RELATES]->(o)
WHERE s.name IN $sources AND s.name <> $target
MATCH (t:Entity {tenantId: $tenantId, name: $target})
MERGE (t)-[newRel:RELATES {type: rel.type}]->(o)
SET newRel.weight = rel.weight, newRel.description = rel.description
DELETE rel
`, map[string]any{"tenantId": tenantID, "target": target, "sources": sources}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `
MATCH (o)-[rel:RELATES]->(s:Entity {tenantId: $tenantId})
WHERE s.name IN $sources AND s.name <> $target
MATCH (t:Entity {tenantId: $tenantId, name: $target})
MERGE (o)-[newRel:RELATES {type: rel.type}]->(t)
SET newRel.weight = rel.weight, newRel.description = rel.description
DELETE rel
`, map[string]any{"tenantId": tenantID, "target": target, "sources": sources}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `
MATCH (c:Chunk)-[rel:MENTIONS]->(s:Entity {tenantId: $tenantId})
WHERE s.name IN $sources AND s.name <> $target
MATCH (t:Entity {tenantId: $tenantId, name: $target})
MERGE (c)-[:MENTIONS]->(t)
DELETE rel
`, map[string]any{"tenantId": tenantID, "target": target, "sources": sources}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
MATCH (s:Entity {tenantId: $tenantId})
WHERE s.name IN $sources AND s.name <> $target
DETACH DELETE s
`, map[string]any{"tenantId": tenantID, "target": target, "sources": sources})
		return nil, err
	})
	return err
}

func (g *neo4jGraph) MarkCommunityStale(ctx context.Context, tenantID string, entityNames []string) error {
	return g.exec(ctx, `
MATCH (e:Entity {tenantId: $tenantId})
WHERE e.name IN $names AND e.community IS NOT NULL AND e.community <> ''
MERGE (c:Community {tenantId: $tenantId, id: e.community})
SET c.stale = true`, map[string]any{"tenantId": tenantID, "names": entityNames})
}

func (g *neo4jGraph) Close() error {
	return g.driver.Close(context.Background())
}
