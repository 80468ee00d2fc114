package ruleengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverer_UnshardedSeesAllTenants(t *testing.T) {
	d := newDiscoverer(&fakeTenantSource{tenants: []string{"a", "b", "c"}})
	streams, err := d.streams(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, streams, 3)
}

func TestDiscoverer_ShardedSplitsTenantsDisjointly(t *testing.T) {
	tenants := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

	seen := map[string]int{}
	const shardCount = 3
	for i := 0; i < shardCount; i++ {
		d := newDiscoverer(&fakeTenantSource{tenants: tenants})
		d.setShard(i, shardCount)
		streams, err := d.streams(context.Background(), time.Now())
		require.NoError(t, err)
		for key := range streams {
			tenant := tenantFromStreamKey(key)
			seen[tenant]++
		}
	}

	assert.Len(t, seen, len(tenants), "every tenant must be owned by exactly one shard")
	for tenant, count := range seen {
		assert.Equal(t, 1, count, "tenant %s owned by %d shards, want 1", tenant, count)
	}
}

func TestDiscoverer_ShardCountOneIsUnsharded(t *testing.T) {
	d := newDiscoverer(&fakeTenantSource{tenants: []string{"a", "b"}})
	d.setShard(0, 1)
	streams, err := d.streams(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, streams, 2)
}
