package device

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
)

// WSHandlers upgrades agent connections and wires them into the Registry and
// Router (spec §4.6). Grounded on the teacher's pkg/api.wsHandler /
// pkg/events.ConnectionManager.HandleConnection read loop.
type WSHandlers struct {
	registry *Registry
	router   *Router
	store    *Store
	hub      *DashboardHub
}

// NewWSHandlers wires the device/client WebSocket endpoints.
func NewWSHandlers(registry *Registry, router *Router, store *Store) *WSHandlers {
	return &WSHandlers{registry: registry, router: router, store: store}
}

// SetDashboardHub wires the optional ops dashboard fan-out (see dashboard.go).
func (h *WSHandlers) SetDashboardHub(hub *DashboardHub) {
	h.hub = hub
}

func (h *WSHandlers) broadcast(ev DashboardEvent) {
	if h.hub == nil {
		return
	}
	ev.At = time.Now().UTC()
	h.hub.Broadcast(ev)
}

// Register mounts the agent-facing WebSocket endpoints (spec §6).
func (h *WSHandlers) Register(g *echo.Group) {
	g.GET("/ws/device/:token", h.handleDevice)
	g.GET("/ws/client/:token", h.handleClient)
}

// RegisterDashboard mounts the optional ops dashboard fan-out endpoint,
// tenant-scoped by bearer token like the REST surfaces (unlike /ws/device
// and /ws/client, which authenticate via the path token instead).
func (h *WSHandlers) RegisterDashboard(g *echo.Group) {
	g.GET("/ws/dashboard", h.handleDashboard)
}

func (h *WSHandlers) handleDashboard(c *echo.Context) error {
	tenant := api.Tenant(c)
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	if h.hub == nil {
		return conn.Close(websocket.StatusPolicyViolation, "dashboard channel not enabled")
	}

	h.hub.Register(tenant, conn)
	defer h.hub.Unregister(tenant, conn)

	ctx := c.Request().Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return nil
		}
	}
}

// handleDevice upgrades a direct-device agent connection: authenticate by
// token hash, mark online, replay pending commands, then read acks until
// the socket closes.
func (h *WSHandlers) handleDevice(c *echo.Context) error {
	ctx := c.Request().Context()
	token := c.Param("token")
	dev, err := h.store.GetDeviceByTokenHash(ctx, HashToken(token))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid device token")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	agent := &AgentConn{Conn: conn, ctx: connCtx}

	h.registry.RegisterDevice(dev.ID, agent)
	defer h.registry.UnregisterDevice(dev.ID, agent)

	now := time.Now().UTC()
	if err := h.store.SetDeviceStatus(ctx, dev.ID, StatusOnline, now); err != nil {
		slog.Warn("device status update failed", "device_id", dev.ID, "error", err)
	}
	h.broadcast(DashboardEvent{Kind: "device_connected", Tenant: dev.Tenant, DeviceID: dev.ID})
	defer func() {
		if err := h.store.SetDeviceStatus(context.WithoutCancel(ctx), dev.ID, StatusOffline, time.Now().UTC()); err != nil {
			slog.Warn("device status update failed", "device_id", dev.ID, "error", err)
		}
		h.broadcast(DashboardEvent{Kind: "device_disconnected", Tenant: dev.Tenant, DeviceID: dev.ID})
	}()

	if err := h.router.ReplayDevice(ctx, dev.ID, agent); err != nil {
		slog.Warn("device command replay failed", "device_id", dev.ID, "error", err)
	}

	h.readLoop(connCtx, conn, dev.ID)
	return nil
}

// handleClient upgrades a host-client agent connection.
func (h *WSHandlers) handleClient(c *echo.Context) error {
	ctx := c.Request().Context()
	token := c.Param("token")
	hc, err := h.hostClientByToken(ctx, token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid client token")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	agent := &AgentConn{Conn: conn, ctx: connCtx}

	h.registry.RegisterClient(hc.ID, hc.Tenant, agent)
	defer h.registry.UnregisterClient(hc.ID, agent)

	now := time.Now().UTC()
	if err := h.store.SetHostClientStatus(ctx, hc.ID, StatusOnline, now); err != nil {
		slog.Warn("host client status update failed", "client_id", hc.ID, "error", err)
	}
	h.broadcast(DashboardEvent{Kind: "client_connected", Tenant: hc.Tenant, ClientID: hc.ID})
	defer func() {
		if err := h.store.SetHostClientStatus(context.WithoutCancel(ctx), hc.ID, StatusOffline, time.Now().UTC()); err != nil {
			slog.Warn("host client status update failed", "client_id", hc.ID, "error", err)
		}
		h.broadcast(DashboardEvent{Kind: "client_disconnected", Tenant: hc.Tenant, ClientID: hc.ID})
	}()

	if err := h.router.ReplayClient(ctx, hc.ID, agent); err != nil {
		slog.Warn("client command replay failed", "client_id", hc.ID, "error", err)
	}

	h.readLoop(connCtx, conn, hc.ID)
	return nil
}

// hostClientByToken is a thin seam; host-client tokens are JWTs minted by
// MintHostClientToken and carry the client id as subject, so no separate
// hash-lookup table is needed.
func (h *WSHandlers) hostClientByToken(ctx context.Context, token string) (*HostClient, error) {
	clientID, tenant, err := ParseHostClientToken(token)
	if err != nil {
		return nil, err
	}
	hc, err := h.store.GetHostClient(ctx, tenant, clientID)
	if err != nil {
		return nil, err
	}
	return hc, nil
}

// readLoop consumes Result acks from the agent until the socket closes
// (spec §4.6: replies carry command_id/status and are applied via
// ApplyResult; malformed frames are logged and dropped, never fatal).
func (h *WSHandlers) readLoop(ctx context.Context, conn *websocket.Conn, agentID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var res Result
		if err := json.Unmarshal(data, &res); err != nil {
			slog.Warn("malformed device command result", "agent_id", agentID, "error", err)
			continue
		}
		if err := ApplyResult(ctx, h.store, res); err != nil {
			slog.Warn("failed to apply device command result", "agent_id", agentID, "error", err)
		}
	}
}
