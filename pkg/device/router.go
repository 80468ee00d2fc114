package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamrelay/platform/pkg/api"
	"github.com/streamrelay/platform/pkg/metrics"
)

// CommandStore is the persistence contract the Router needs (spec §4.6).
// Store satisfies it; tests use a fake.
type CommandStore interface {
	GetDevice(ctx context.Context, tenant, id string) (*Device, error)
	CreateCommand(ctx context.Context, tenant, deviceID, commandType string, params map[string]interface{}) (*Command, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	PendingCommandsForDevice(ctx context.Context, deviceID string) ([]*Command, error)
	PendingCommandsForClient(ctx context.Context, clientID string) ([]*Command, error)
	DevicesForClient(ctx context.Context, clientID string) ([]*Device, error)
}

// Router implements the command lifecycle of spec §4.6: persist-before-send,
// best-effort immediate delivery, and replay-on-reconnect.
type Router struct {
	store    CommandStore
	registry *Registry
	hub      *DashboardHub
}

// NewRouter wires a Router.
func NewRouter(store CommandStore, registry *Registry) *Router {
	return &Router{store: store, registry: registry}
}

// SetDashboardHub wires the optional ops dashboard fan-out (see dashboard.go).
func (r *Router) SetDashboardHub(hub *DashboardHub) {
	r.hub = hub
}

func (r *Router) broadcast(ev DashboardEvent) {
	if r.hub == nil {
		return
	}
	ev.At = time.Now().UTC()
	r.hub.Broadcast(ev)
}

// Dispatch implements the authoritative command path (spec §4.6):
//  1. validate the device belongs to tenant
//  2. persist the command in pending
//  3. if an agent is connected, attempt an immediate send and transition to
//     sent on success; on send failure, treat the agent as dead and leave
//     the command pending for later replay
//  4. otherwise return with status pending
func (r *Router) Dispatch(ctx context.Context, tenant, deviceID, commandType string, params map[string]interface{}) (*Command, error) {
	dev, err := r.store.GetDevice(ctx, tenant, deviceID)
	if err != nil {
		return nil, err
	}

	cmd, err := r.store.CreateCommand(ctx, tenant, dev.ID, commandType, params)
	if err != nil {
		return nil, fmt.Errorf("device: dispatch: %w", err)
	}
	r.broadcast(DashboardEvent{Kind: "command_created", Tenant: tenant, DeviceID: dev.ID, CommandID: cmd.ID, Status: string(cmd.Status)})

	conn, agentID, ok := r.agentFor(dev)
	if !ok {
		metrics.DeviceCommandsDispatchedTotal.WithLabelValues("pending").Inc()
		return cmd, nil
	}

	if err := conn.send(commandEnvelope{
		CommandID:   cmd.ID,
		DeviceID:    dev.ID,
		CommandType: cmd.CommandType,
		Parameters:  cmd.Parameters,
	}); err != nil {
		slog.Warn("device command send failed, agent treated as dead", "device_id", dev.ID, "command_id", cmd.ID, "error", err)
		r.evictDeadAgent(dev, agentID, conn)
		metrics.DeviceCommandsDispatchedTotal.WithLabelValues("pending").Inc()
		return cmd, nil
	}

	sentAt := time.Now().UTC()
	if err := r.store.MarkSent(ctx, cmd.ID, sentAt); err != nil {
		return nil, fmt.Errorf("device: dispatch: mark sent: %w", err)
	}
	cmd.Status = CommandSent
	cmd.SentAt = &sentAt
	metrics.DeviceCommandsDispatchedTotal.WithLabelValues("sent").Inc()
	r.broadcast(DashboardEvent{Kind: "command_sent", Tenant: tenant, DeviceID: dev.ID, CommandID: cmd.ID, Status: string(cmd.Status)})
	return cmd, nil
}

// commandEnvelope is the wire shape sent down an agent's channel.
type commandEnvelope struct {
	CommandID   string                 `json:"command_id"`
	DeviceID    string                 `json:"device_id"`
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// agentFor resolves the live channel that owns dev: its own direct
// connection if one is registered, else its host client's connection.
func (r *Router) agentFor(dev *Device) (*AgentConn, string, bool) {
	if conn, ok := r.registry.Device(dev.ID); ok {
		return conn, dev.ID, true
	}
	if dev.ClientID != "" {
		if conn, ok := r.registry.Client(dev.ClientID); ok {
			return conn, dev.ClientID, true
		}
	}
	return nil, "", false
}

func (r *Router) evictDeadAgent(dev *Device, agentID string, conn *AgentConn) {
	if agentID == dev.ID {
		r.registry.UnregisterDevice(dev.ID, conn)
		return
	}
	r.registry.UnregisterClient(agentID, conn)
}

// ReplayDevice delivers every pending command for a direct device on
// reconnect, ordered by created_at ascending (spec §4.6 "Replay on
// reconnect"), transitioning each to sent as it goes out.
func (r *Router) ReplayDevice(ctx context.Context, deviceID string, conn *AgentConn) error {
	pending, err := r.store.PendingCommandsForDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("device: replay device: %w", err)
	}
	return r.replay(ctx, pending, conn)
}

// ReplayClient delivers every pending command across all devices bound to
// clientID, ordered by created_at ascending.
func (r *Router) ReplayClient(ctx context.Context, clientID string, conn *AgentConn) error {
	pending, err := r.store.PendingCommandsForClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("device: replay client: %w", err)
	}
	return r.replay(ctx, pending, conn)
}

func (r *Router) replay(ctx context.Context, pending []*Command, conn *AgentConn) error {
	for _, cmd := range pending {
		if err := conn.send(commandEnvelope{
			CommandID:   cmd.ID,
			DeviceID:    cmd.DeviceID,
			CommandType: cmd.CommandType,
			Parameters:  cmd.Parameters,
		}); err != nil {
			// Agent died mid-replay; remaining commands stay pending for
			// the next connect.
			return fmt.Errorf("device: replay: send failed: %w", err)
		}
		if err := r.store.MarkSent(ctx, cmd.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("device: replay: mark sent: %w", err)
		}
	}
	return nil
}

// Result is the agent's reply to a dispatched command (spec §4.6:
// "Replies for unknown command_id are logged and dropped").
type Result struct {
	CommandID string                 `json:"command_id"`
	Status    CommandStatus          `json:"status"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ResultStore is the subset of CommandStore needed to apply a Result.
type ResultStore interface {
	GetCommandByID(ctx context.Context, id string) (*Command, error)
	MarkTerminal(ctx context.Context, id string, status CommandStatus, result map[string]interface{}, errMsg string, at time.Time) error
}

// ApplyResult records an agent's terminal reply. An unknown command_id, or a
// reply for a command already terminal, is logged and dropped rather than
// returned as an error (spec §4.6, §7): the agent cannot roll back server
// state by replaying stale acks.
func ApplyResult(ctx context.Context, store ResultStore, res Result) error {
	if res.Status != CommandCompleted && res.Status != CommandFailed {
		slog.Warn("device command result has non-terminal status, dropped", "command_id", res.CommandID, "status", res.Status)
		return nil
	}

	cmd, err := store.GetCommandByID(ctx, res.CommandID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			slog.Warn("device command result for unknown command_id, dropped", "command_id", res.CommandID)
			return nil
		}
		return fmt.Errorf("device: apply result: %w", err)
	}
	if cmd.Status == CommandCompleted || cmd.Status == CommandFailed {
		slog.Warn("device command result for already-terminal command, dropped", "command_id", res.CommandID)
		return nil
	}

	if err := store.MarkTerminal(ctx, cmd.ID, res.Status, res.Result, res.Error, time.Now().UTC()); err != nil {
		return fmt.Errorf("device: apply result: %w", err)
	}
	metrics.DeviceCommandsTerminalTotal.WithLabelValues(string(res.Status)).Inc()
	return nil
}
