package ruleengine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/broker"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTenantSource struct{ tenants []string }

func (f *fakeTenantSource) ActiveTenants(ctx context.Context) ([]string, error) {
	return f.tenants, nil
}

type fakeReader struct {
	mu       sync.Mutex
	batches  [][]broker.Message
	callIdx  int
}

func (f *fakeReader) ReadBatch(ctx context.Context, cursors map[string]string, count int64, block time.Duration) ([]broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callIdx >= len(f.batches) {
		return nil, nil
	}
	batch := f.batches[f.callIdx]
	f.callIdx++
	return batch, nil
}

type fakeRuleFetcher struct {
	rulesByTenant map[string][]*Rule
	mu            sync.Mutex
	calls         []string
}

func (f *fakeRuleFetcher) ActiveRulesFor(ctx context.Context, tenant, kind string) ([]*Rule, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tenant+":"+kind)
	f.mu.Unlock()
	return f.rulesByTenant[tenant], nil
}

func TestConsumer_TenantIsolation(t *testing.T) {
	tenants := &fakeTenantSource{tenants: []string{"w1", "w2"}}
	reader := &fakeReader{batches: [][]broker.Message{
		{{Stream: broker.EventStreamKey("w2"), ID: "1-0", Fields: map[string]string{"event_kind": "gift", "gift_name": "Rose"}}},
	}}
	w1Rule := &Rule{ID: "r1", Tenant: "w1", EventKind: "gift", Status: StatusActive, LogicOperator: LogicAND}
	fetcher := &fakeRuleFetcher{rulesByTenant: map[string][]*Rule{"w1": {w1Rule}}}
	store := &fakeExecutionStore{}
	executor := NewExecutor(store, nil, func(string) string { return "" })

	consumer := NewConsumer(tenants, reader, fetcher, executor)
	consumer.tick(context.Background(), noopLogger())

	// w2's gift event must never evaluate w1's rule.
	assert.NotContains(t, fetcher.calls, "w1:gift")
	assert.Empty(t, store.executions)
}

func TestConsumer_MatchedRuleExecutes(t *testing.T) {
	tenants := &fakeTenantSource{tenants: []string{"w1"}}
	reader := &fakeReader{batches: [][]broker.Message{
		{{Stream: broker.EventStreamKey("w1"), ID: "1-0", Fields: map[string]string{"event_kind": "gift", "gift_name": "Rose", "diamond_count": "11"}}},
	}}
	rule := &Rule{
		ID: "r1", Tenant: "w1", EventKind: "gift", Status: StatusActive, LogicOperator: LogicAND,
		Conditions: []Condition{{Field: "diamond_count", Operator: OpGreater, Value: "10"}},
		Actions:    []Action{{Kind: ActionLog, Config: map[string]interface{}{"message": "hit"}}},
	}
	fetcher := &fakeRuleFetcher{rulesByTenant: map[string][]*Rule{"w1": {rule}}}
	store := &fakeExecutionStore{}
	executor := NewExecutor(store, nil, func(string) string { return "" })

	consumer := NewConsumer(tenants, reader, fetcher, executor)
	err := consumer.tick(context.Background(), noopLogger())
	require.NoError(t, err)

	require.Len(t, store.executions, 1)
	assert.Equal(t, ExecSuccess, store.executions[0].Status)
}

func TestConsumer_ThresholdNotMet(t *testing.T) {
	tenants := &fakeTenantSource{tenants: []string{"w1"}}
	reader := &fakeReader{batches: [][]broker.Message{
		{{Stream: broker.EventStreamKey("w1"), ID: "1-0", Fields: map[string]string{"event_kind": "gift", "diamond_count": "5"}}},
	}}
	rule := &Rule{
		ID: "r1", Tenant: "w1", EventKind: "gift", Status: StatusActive, LogicOperator: LogicAND,
		Conditions: []Condition{{Field: "diamond_count", Operator: OpGreater, Value: "10"}},
	}
	fetcher := &fakeRuleFetcher{rulesByTenant: map[string][]*Rule{"w1": {rule}}}
	store := &fakeExecutionStore{}
	executor := NewExecutor(store, nil, func(string) string { return "" })

	consumer := NewConsumer(tenants, reader, fetcher, executor)
	require.NoError(t, consumer.tick(context.Background(), noopLogger()))
	assert.Empty(t, store.executions)
}
