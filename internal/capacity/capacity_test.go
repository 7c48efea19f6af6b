package capacity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manifold/internal/config"
)

func TestLimiter_NilStoreAlwaysAdmits(t *testing.T) {
	l := New(config.CapacityConfig{TotalSlots: 1, ChatReserved: 1}, nil)
	lease, err := l.Acquire(context.Background(), "tenant-a", ClassChat, "lease-1")
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.NoError(t, lease.Release(context.Background(), "tenant-a"))
}

func TestLimiter_InUseWithNilStoreReturnsZero(t *testing.T) {
	l := New(config.CapacityConfig{TotalSlots: 4}, nil)
	n, err := l.InUse(context.Background(), "tenant-a", ClassIngestion)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestErrCapacityExceeded_Message(t *testing.T) {
	err := ErrCapacityExceeded{TenantID: "t1", Class: ClassCommunities}
	assert.Contains(t, err.Error(), "t1")
	assert.Contains(t, err.Error(), "communities")
}

func TestLimiter_ClassLimit(t *testing.T) {
	l := New(config.CapacityConfig{TotalSlots: 16, ChatReserved: 10, IngestionShare: 4, CommunitiesShare: 2}, nil)
	assert.Equal(t, 10, l.classLimit(ClassChat))
	assert.Equal(t, 4, l.classLimit(ClassIngestion))
	assert.Equal(t, 2, l.classLimit(ClassCommunities))
}
