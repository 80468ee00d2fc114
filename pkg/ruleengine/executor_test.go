package ruleengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutionStore struct {
	executions []Execution
	bumped     []string
}

func (f *fakeExecutionStore) RecordExecution(ctx context.Context, exec Execution) error {
	f.executions = append(f.executions, exec)
	return nil
}

func (f *fakeExecutionStore) BumpRuleStats(ctx context.Context, ruleID string, execAt time.Time) error {
	f.bumped = append(f.bumped, ruleID)
	return nil
}

func TestExecutor_LogActionAlwaysSucceeds(t *testing.T) {
	store := &fakeExecutionStore{}
	exec := NewExecutor(store, nil, func(string) string { return "" })

	rule := Rule{ID: "r1", Actions: []Action{{Kind: ActionLog, Config: map[string]interface{}{"message": "gift from {{handle}}"}}}}
	ev := Event{ID: "1-0", Kind: "gift", Tenant: "w1", Fields: map[string]string{"handle": "fan1"}}

	result := exec.Execute(context.Background(), rule, ev)
	assert.Equal(t, ExecSuccess, result.Status)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Equal(t, 0, result.ActionsFailed)
	require.Len(t, store.executions, 1)
	require.Len(t, store.bumped, 1)
}

func TestExecutor_PartialFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	store := &fakeExecutionStore{}
	exec := NewExecutor(store, nil, func(string) string { return "" })

	rule := Rule{
		ID: "r1",
		Actions: []Action{
			{Kind: ActionLog, Order: 0, Config: map[string]interface{}{"message": "ok"}},
			{Kind: ActionWebhook, Order: 1, Config: map[string]interface{}{"url": failing.URL}},
		},
	}
	ev := Event{ID: "1-0", Kind: "gift", Tenant: "w1", Fields: map[string]string{}}

	result := exec.Execute(context.Background(), rule, ev)
	assert.Equal(t, ExecPartial, result.Status)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Equal(t, 1, result.ActionsFailed)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestExecutor_AllActionsFail(t *testing.T) {
	store := &fakeExecutionStore{}
	exec := NewExecutor(store, nil, func(string) string { return "" })

	rule := Rule{ID: "r1", Actions: []Action{{Kind: ActionWebhook, Config: map[string]interface{}{}}}}
	ev := Event{ID: "1-0", Kind: "gift", Tenant: "w1", Fields: map[string]string{}}

	result := exec.Execute(context.Background(), rule, ev)
	assert.Equal(t, ExecFailed, result.Status)
}

func TestExecutor_DeviceControlDispatch(t *testing.T) {
	var gotBody DeviceControlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := &fakeExecutionStore{}
	exec := NewExecutor(store, nil, func(tenant string) string { return srv.URL })

	rule := Rule{ID: "r1", Actions: []Action{{Kind: ActionDeviceControl, Config: map[string]interface{}{
		"device_id":    "d1",
		"command_type": "turn_on",
		"parameters":   map[string]interface{}{"brightness": float64(100)},
	}}}}
	ev := Event{ID: "1-0", Kind: "gift", Tenant: "w1", Fields: map[string]string{}}

	result := exec.Execute(context.Background(), rule, ev)
	assert.Equal(t, ExecSuccess, result.Status)
	assert.Equal(t, "w1", gotBody.Tenant)
	assert.Equal(t, "d1", gotBody.DeviceID)
	assert.Equal(t, "turn_on", gotBody.CommandType)
}

func TestSubstituteTemplate_MissingFieldLeavesPlaceholder(t *testing.T) {
	config := map[string]interface{}{"message": "hello {{unknown}}"}
	out := substituteTemplate(config, map[string]string{"handle": "fan1"})
	assert.Equal(t, "hello {{unknown}}", out["message"])
}

func TestSubstituteTemplate_ReplacesKnownField(t *testing.T) {
	config := map[string]interface{}{"message": "gift from {{handle}}"}
	out := substituteTemplate(config, map[string]string{"handle": "fan1"})
	assert.Equal(t, "gift from fan1", out["message"])
}
