package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"manifold/internal/config"
)

func TestCache_NilStoreAlwaysMisses(t *testing.T) {
	c := New(config.CacheConfig{TTLSecs: 60}, nil)
	_, ok := c.GetEmbedding(context.Background(), "model-a", "hello")
	assert.False(t, ok)

	assert.NoError(t, c.SetEmbedding(context.Background(), "model-a", "hello", []float32{0.1, 0.2}))

	_, ok = c.GetResult(context.Background(), "tenant-a", "query", "hybrid")
	assert.False(t, ok)
}

func TestEmbeddingKey_StableAndDistinctByModel(t *testing.T) {
	a := embeddingKey("model-a", "same text")
	b := embeddingKey("model-b", "same text")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, embeddingKey("model-a", "same text"))
}

func TestResultKey_DistinctByMode(t *testing.T) {
	a := resultKey("tenant-a", "q", "hybrid")
	b := resultKey("tenant-a", "q", "global")
	assert.NotEqual(t, a, b)
}
