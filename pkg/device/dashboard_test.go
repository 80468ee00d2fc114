package device

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardHub_BroadcastDeliversToTenantSubscribers(t *testing.T) {
	hub := NewDashboardHub()
	agentA, teardownA := dialAgent(t)
	defer teardownA()
	agentB, teardownB := dialAgent(t)
	defer teardownB()

	hub.Register("tenant-a", agentA.Conn)
	hub.Register("tenant-b", agentB.Conn)

	hub.Broadcast(DashboardEvent{Kind: "device_connected", Tenant: "tenant-a", DeviceID: "dev-1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := agentA.Conn.Read(ctx)
	require.NoError(t, err)

	var ev DashboardEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "device_connected", ev.Kind)
	assert.Equal(t, "dev-1", ev.DeviceID)
}

func TestDashboardHub_UnregisterStopsDelivery(t *testing.T) {
	hub := NewDashboardHub()
	agent, teardown := dialAgent(t)
	defer teardown()

	hub.Register("tenant-a", agent.Conn)
	hub.Unregister("tenant-a", agent.Conn)

	hub.Broadcast(DashboardEvent{Kind: "device_connected", Tenant: "tenant-a"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err := agent.Conn.Read(ctx)
	assert.Error(t, err, "no message should have been delivered after unregister")
}

func TestDashboardHub_NoSubscribersIsNoop(t *testing.T) {
	hub := NewDashboardHub()
	hub.Broadcast(DashboardEvent{Kind: "device_connected", Tenant: "tenant-nobody-is-watching"})
}
