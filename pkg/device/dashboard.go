package device

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DashboardEvent is a lightweight status event broadcast to the optional ops
// dashboard channel. Additive flavor on top of spec §4.6: no spec.md
// invariant depends on it, and the core command lifecycle works identically
// whether or not any dashboard socket is connected.
type DashboardEvent struct {
	Kind      string    `json:"kind"`
	Tenant    string    `json:"tenant"`
	DeviceID  string    `json:"device_id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	CommandID string    `json:"command_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// DashboardHub fans DashboardEvents out to every connected dashboard socket
// for a tenant. Where Registry generalizes the teacher's
// pkg/events.ConnectionManager down to exactly-one-target delivery, this
// restores its original broadcast-to-many shape for the dashboard's
// many-observers case.
type DashboardHub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{} // tenant -> connections
}

// NewDashboardHub constructs an empty hub.
func NewDashboardHub() *DashboardHub {
	return &DashboardHub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// Register adds conn to tenant's broadcast set.
func (h *DashboardHub) Register(tenant string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[tenant] == nil {
		h.conns[tenant] = make(map[*websocket.Conn]struct{})
	}
	h.conns[tenant][conn] = struct{}{}
}

// Unregister removes conn from tenant's broadcast set.
func (h *DashboardHub) Unregister(tenant string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[tenant], conn)
}

// Broadcast sends ev to every dashboard socket registered for ev.Tenant.
// Snapshot-then-send, same rule as Registry: never hold the lock during
// writes. A write failure drops that socket from the set instead of
// propagating an error — a slow dashboard observer must never affect command
// delivery.
func (h *DashboardHub) Broadcast(ev DashboardEvent) {
	h.mu.RLock()
	set := h.conns[ev.Tenant]
	conns := make([]*websocket.Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("dashboard event marshal failed", "error", err)
		return
	}
	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.Unregister(ev.Tenant, conn)
		}
	}
}
