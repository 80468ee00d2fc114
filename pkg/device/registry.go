// Package device implements the Device Command Router (spec §4.5, §4.6):
// device/host-client identity, the in-process agent connection registry,
// and the at-least-once command lifecycle.
package device

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/streamrelay/platform/pkg/metrics"
)

// AgentConn is a live bidirectional channel to one agent (a direct device or
// a host client). Grounded on the teacher's pkg/events.ConnectionManager,
// generalized from broadcast-to-many to exactly-one-target send/receive.
type AgentConn struct {
	Conn *websocket.Conn
	ctx  context.Context
}

// send writes one JSON message to the agent with a bounded deadline.
func (a *AgentConn) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(a.ctx, writeTimeout)
	defer cancel()
	return a.Conn.Write(ctx, websocket.MessageText, data)
}

const writeTimeout = 10 * time.Second

// Registry is the in-process map of online agents (spec §4.6): one map for
// direct-device agents keyed by device id, one for host-client agents keyed
// by client id (plus the client's tenant, for scoping replay queries). One
// sync.RWMutex, as in the teacher's ConnectionManager, guards all three maps:
// registrations and removals for unrelated identities serialize on it.
type Registry struct {
	mu           sync.RWMutex
	devices      map[string]*AgentConn
	clients      map[string]*AgentConn
	clientTenant map[string]string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:      make(map[string]*AgentConn),
		clients:      make(map[string]*AgentConn),
		clientTenant: make(map[string]string),
	}
}

// RegisterDevice installs conn as the channel for deviceID, superseding and
// closing any previous connection for the same identity (spec §4.6, §3
// invariant: "a second connect for the same identity supersedes and closes
// the first").
func (r *Registry) RegisterDevice(deviceID string, conn *AgentConn) {
	r.mu.Lock()
	old := r.devices[deviceID]
	r.devices[deviceID] = conn
	r.mu.Unlock()

	if old != nil {
		closeSuperseded(old)
	} else {
		metrics.DeviceAgentsConnected.WithLabelValues("device").Inc()
	}
}

// RegisterClient installs conn as the channel for clientID.
func (r *Registry) RegisterClient(clientID, tenant string, conn *AgentConn) {
	r.mu.Lock()
	old := r.clients[clientID]
	r.clients[clientID] = conn
	r.clientTenant[clientID] = tenant
	r.mu.Unlock()

	if old != nil {
		closeSuperseded(old)
	} else {
		metrics.DeviceAgentsConnected.WithLabelValues("client").Inc()
	}
}

// UnregisterDevice removes deviceID's entry if conn is still the registered
// channel (a stale unregister from an already-superseded connection is a
// no-op, so a slow old connection's cleanup can never evict a newer one).
func (r *Registry) UnregisterDevice(deviceID string, conn *AgentConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.devices[deviceID] != conn {
		return false
	}
	delete(r.devices, deviceID)
	metrics.DeviceAgentsConnected.WithLabelValues("device").Dec()
	return true
}

// UnregisterClient removes clientID's entry if conn is still current.
func (r *Registry) UnregisterClient(clientID string, conn *AgentConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[clientID] != conn {
		return false
	}
	delete(r.clients, clientID)
	delete(r.clientTenant, clientID)
	metrics.DeviceAgentsConnected.WithLabelValues("client").Dec()
	return true
}

// Device returns the live channel for deviceID, if any.
func (r *Registry) Device(deviceID string) (*AgentConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.devices[deviceID]
	return c, ok
}

// Client returns the live channel for clientID, if any.
func (r *Registry) Client(clientID string) (*AgentConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	return c, ok
}

func closeSuperseded(conn *AgentConn) {
	_ = conn.Conn.Close(websocket.StatusPolicyViolation, "superseded by new connection")
	slog.Info("agent connection superseded")
}
