package ingestor

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/streamrelay/platform/pkg/broker"
)

// newTestBroker spins up an in-process miniredis server and returns a
// broker.Broker backed by it, so worker/manager tests exercise real
// Append/ReadBatch semantics without a live Redis instance.
func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return broker.New(rdb, 0)
}
