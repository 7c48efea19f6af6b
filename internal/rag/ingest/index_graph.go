package ingest

import (
	"context"

	"manifold/internal/persistence/databases"
)

const (
	relRefersTo = "REFERS_TO"
)

// UpsertDocAndChunksGraph upserts the Doc node, all Chunk nodes, and the
// HAS_CHUNK edges implied by chunk order. It returns the list of chunk IDs
// created (same order as the chunks slice).
func UpsertDocAndChunksGraph(ctx context.Context, g databases.GraphStore, docID string, pre PreprocessedDoc, in IngestRequest, chunks []ChunkRecord, version int) ([]string, error) {
	if g == nil {
		return nil, nil
	}

	filename := in.Title
	if filename == "" {
		filename = in.URL
	}
	if err := g.UpsertDocument(ctx, in.Tenant, docID, filename); err != nil {
		return nil, err
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		cid := chunkID(docID, c.Index)
		ids[i] = cid
		if err := g.UpsertChunk(ctx, in.Tenant, docID, cid, c.Index); err != nil {
			return ids[:i], err
		}
	}

	// Optional: external references as entities with REFERS_TO edges from the doc.
	if in.Options.Graph.ExternalRefs != nil {
		for src, key := range in.Options.Graph.ExternalRefs {
			refID := "ref:" + src + ":" + key
			if err := g.MergeEntity(ctx, databases.GraphEntity{
				TenantID: in.Tenant,
				Name:     refID,
				Type:     "external_ref",
			}); err != nil {
				return ids, err
			}
			if err := g.MergeRelation(ctx, databases.GraphRelation{
				TenantID: in.Tenant,
				Source:   docID,
				Target:   refID,
				Type:     relRefersTo,
				Weight:   1,
			}); err != nil {
				return ids, err
			}
		}
	}
	return ids, nil
}

// Entity and link extraction scaffolding (no-op defaults)

// Entity represents a detected named-entity mention.
type Entity struct {
	ID    string
	Type  string
	Value string
	Meta  map[string]any
}

// EntityExtractor extracts entities from text.
type EntityExtractor interface {
	Extract(ctx context.Context, text, lang string) ([]Entity, error)
}

// Link represents an external reference discovered in text.
type Link struct {
	Source string
	Key    string
	URL    string
	Meta   map[string]any
}

// LinkExtractor extracts external references from text.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, text string) ([]Link, error)
}
