package ingest

import (
    "context"
    "testing"

    "manifold/internal/persistence/databases"
)

func TestUpsertDocAndChunksGraph_ChunkIDs(t *testing.T) {
    ctx := context.Background()
    g := databases.NewMemoryGraph()
    in := IngestRequest{
        ID:     "doc:acme:alpha",
        Title:  "Alpha",
        URL:    "https://example.com/alpha",
        Source: "test",
        Tenant: "acme",
    }
    pre := PreprocessedDoc{Text: "hello world", Language: "english", Hash: "h"}
    chunks := []ChunkRecord{{Index: 0, Text: "c0"}, {Index: 1, Text: "c1"}, {Index: 2, Text: "c2"}}

    ids, err := UpsertDocAndChunksGraph(ctx, g, in.ID, pre, in, chunks, 1)
    if err != nil {
        t.Fatalf("graph upsert failed: %v", err)
    }
    if len(ids) != len(chunks) {
        t.Fatalf("expected %d chunk ids, got %d", len(chunks), len(ids))
    }
    for i, id := range ids {
        want := chunkID(in.ID, chunks[i].Index)
        if id != want {
            t.Fatalf("expected chunk id %s, got %s", want, id)
        }
    }

    // Idempotent: re-running must not error and must produce the same ids.
    ids2, err := UpsertDocAndChunksGraph(ctx, g, in.ID, pre, in, chunks, 1)
    if err != nil {
        t.Fatalf("second upsert failed: %v", err)
    }
    if len(ids2) != len(ids) {
        t.Fatalf("expected idempotent chunk count, got %d then %d", len(ids), len(ids2))
    }
}

func TestUpsertDocAndChunksGraph_ExternalRefs(t *testing.T) {
    ctx := context.Background()
    g := databases.NewMemoryGraph()
    in := IngestRequest{
        ID:     "doc:acme:alpha",
        Tenant: "acme",
        Options: IngestOptions{
            Graph: GraphOptions{
                ExternalRefs: map[string]string{"wiki": "alpha-topic"},
            },
        },
    }
    pre := PreprocessedDoc{Text: "hello world", Language: "english", Hash: "h"}
    chunks := []ChunkRecord{{Index: 0, Text: "c0"}}

    if _, err := UpsertDocAndChunksGraph(ctx, g, in.ID, pre, in, chunks, 1); err != nil {
        t.Fatalf("graph upsert failed: %v", err)
    }

    neigh, err := g.Neighbors(ctx, in.Tenant, in.ID, nil, 0)
    if err != nil {
        t.Fatalf("neighbors failed: %v", err)
    }
    if len(neigh) != 1 || neigh[0].Name != "ref:wiki:alpha-topic" || neigh[0].RelType != relRefersTo {
        t.Fatalf("expected a single REFERS_TO neighbor, got %#v", neigh)
    }
}
