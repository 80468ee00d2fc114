package ruleengine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/streamrelay/platform/pkg/broker"
)

// TenantSource discovers which tenants currently have active rules.
// Implemented by Store.ActiveTenants; mocked in tests.
type TenantSource interface {
	ActiveTenants(ctx context.Context) ([]string, error)
}

// discoverInterval bounds how stale the discovered tenant set may be (spec
// §4.3: "may cache for a few seconds but must converge within bounded delay").
const discoverInterval = 3 * time.Second

// discoverer tracks the current set of tenant stream keys and each stream's
// read cursor, refreshing on a timer.
type discoverer struct {
	source     TenantSource
	mu         sync.Mutex
	cursors    map[string]string // stream key -> last-seen id
	next       time.Time
	shardIndex int
	shardCount int
}

func newDiscoverer(source TenantSource) *discoverer {
	return &discoverer{source: source, cursors: make(map[string]string), shardCount: 1}
}

// setShard restricts this discoverer to the subset of tenants whose hash
// falls into shardIndex of shardCount (spec §5: "horizontally shardable by
// tenant key"). shardCount <= 1 disables sharding (the default).
func (d *discoverer) setShard(index, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if count < 1 {
		count = 1
	}
	d.shardIndex = index % count
	d.shardCount = count
}

// ownsTenant reports whether this shard is responsible for tenant.
func (d *discoverer) ownsTenant(tenant string) bool {
	if d.shardCount <= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenant))
	return int(h.Sum32()%uint32(d.shardCount)) == d.shardIndex
}

// streams returns the current cursor map, refreshing it from source if the
// cache interval has elapsed. Newly discovered streams start at cursor "0"
// (spec §4.3 step 2: "the initial cursor is the earliest id").
func (d *discoverer) streams(ctx context.Context, now time.Time) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Before(d.next) {
		return cloneCursors(d.cursors), nil
	}
	d.next = now.Add(discoverInterval)

	tenants, err := d.source.ActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("ruleengine: discover active tenants: %w", err)
	}

	fresh := make(map[string]string, len(tenants))
	for _, tenant := range tenants {
		if !d.ownsTenant(tenant) {
			continue
		}
		key := broker.EventStreamKey(tenant)
		if cursor, ok := d.cursors[key]; ok {
			fresh[key] = cursor
		} else {
			fresh[key] = "0"
		}
	}
	d.cursors = fresh
	return cloneCursors(d.cursors), nil
}

// advance moves a stream's cursor forward to the last entry id consumed
// from it (spec §4.3 step 4: "advance the in-memory cursor to this entry's id").
func (d *discoverer) advance(streamKey, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cursors[streamKey]; ok {
		d.cursors[streamKey] = id
	}
}

func cloneCursors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// tenantFromStreamKey recovers the tenant from a "tiktok:events:{tenant}" key.
func tenantFromStreamKey(key string) string {
	const prefix = "tiktok:events:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return ""
}
