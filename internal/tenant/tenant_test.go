package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
)

type fakeRepo struct {
	mu    sync.Mutex
	rows  map[string]Config
	calls int
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: make(map[string]Config)} }

func (f *fakeRepo) Get(_ context.Context, tenantID string) (Config, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	cfg, ok := f.rows[tenantID]
	return cfg, ok, nil
}

func (f *fakeRepo) Upsert(_ context.Context, cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[cfg.TenantID] = cfg
	return nil
}

func TestManager_GetTenantConfig_SeedsDefaultsOnFirstSeen(t *testing.T) {
	repo := newFakeRepo()
	m := New(repo, nil, config.TenancyConfig{DefaultRRFK: 60, DefaultVectorWeight: 1, DefaultGraphWeight: 1}, 8)

	cfg, err := m.GetTenantConfig(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.RRFK)
	assert.Equal(t, 1.0, cfg.VectorWeight)
}

func TestManager_GetTenantConfig_CachesAfterFirstLookup(t *testing.T) {
	repo := newFakeRepo()
	m := New(repo, nil, config.TenancyConfig{DefaultRRFK: 60}, 8)

	_, err := m.GetTenantConfig(context.Background(), "tenant-a")
	require.NoError(t, err)
	callsAfterFirst := repo.calls

	_, err = m.GetTenantConfig(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, repo.calls, "second lookup should be served from the LRU")
}

func TestManager_UpdateTenantWeights_InvalidatesCacheAndPersists(t *testing.T) {
	repo := newFakeRepo()
	m := New(repo, nil, config.TenancyConfig{DefaultVectorWeight: 1, DefaultGraphWeight: 1}, 8)

	_, err := m.GetTenantConfig(context.Background(), "tenant-a")
	require.NoError(t, err)

	err = m.UpdateTenantWeights(context.Background(), "admin", "tenant-a", 0.7, 1.3)
	require.NoError(t, err)

	cfg, err := m.GetTenantConfig(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.VectorWeight)
	assert.Equal(t, 1.3, cfg.GraphWeight)
}

func TestLRU_EvictsOldestBeyondCapacity(t *testing.T) {
	l := newLRU(2)
	l.put("a", Config{TenantID: "a"})
	l.put("b", Config{TenantID: "b"})
	l.put("c", Config{TenantID: "c"})

	_, ok := l.get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = l.get("c")
	assert.True(t, ok)
}

func TestAnalyzeFeedbackForTuning_NudgesTowardAcceptedSource(t *testing.T) {
	samples := []FeedbackSample{
		{TenantID: "t1", VectorAccepted: true},
		{TenantID: "t1", VectorAccepted: true},
		{TenantID: "t1", GraphAccepted: true},
	}
	suggestions := AnalyzeFeedbackForTuning(samples, map[string]Config{
		"t1": {VectorWeight: 1, GraphWeight: 1},
	})
	require.Len(t, suggestions, 1)
	assert.Greater(t, suggestions[0].VectorWeight, suggestions[0].GraphWeight)
}
