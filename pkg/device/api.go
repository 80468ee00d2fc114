package device

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
)

// API exposes the §6 device/client REST surface: device CRUD, client
// registration, command dispatch/listing, and the internal control webhook
// the Action Executor posts to for device_control actions.
type API struct {
	store  *Store
	router *Router
}

// NewAPI constructs the handler set.
func NewAPI(store *Store, router *Router) *API { return &API{store: store, router: router} }

// Register mounts the tenant-scoped device/client routes under group. The
// internal control webhook is mounted separately via RegisterWebhook since
// it is not tenant-bearer-authenticated (see webhookControl).
func (a *API) Register(g *echo.Group) {
	g.POST("/devices", a.createDevice)
	g.GET("/devices", a.listDevices)
	g.GET("/devices/:id", a.getDevice)
	g.PATCH("/devices/:id", a.updateDevice)
	g.DELETE("/devices/:id", a.deleteDevice)
	g.POST("/devices/:id/commands", a.dispatchCommand)
	g.GET("/devices/:id/commands", a.listCommands)

	g.POST("/clients/register", a.registerClient)
	g.GET("/clients", a.listClients)
	g.DELETE("/clients/:id", a.deleteClient)
}

// RegisterWebhook mounts the Rule Engine's internal control webhook under
// group. Call this on a group with no tenant-bearer middleware (see
// webhookControl for why).
func (a *API) RegisterWebhook(g *echo.Group) {
	g.POST("/webhook/control", a.webhookControl)
}

type createDeviceRequest struct {
	Name     string                 `json:"name"`
	Kind     string                 `json:"device_type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (a *API) createDevice(c *echo.Context) error {
	tenant := api.Tenant(c)
	var req createDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Kind == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and device_type are required")
	}

	token, err := GenerateDeviceToken()
	if err != nil {
		return api.MapServiceError(err)
	}
	dev, err := a.store.CreateDevice(c.Request().Context(), tenant, req.Name, req.Kind, req.Metadata, HashToken(token))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusCreated, DeviceWithToken{Device: *dev, Token: token})
}

func (a *API) listDevices(c *echo.Context) error {
	devices, err := a.store.ListDevices(c.Request().Context(), api.Tenant(c))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, devices)
}

func (a *API) getDevice(c *echo.Context) error {
	dev, err := a.store.GetDevice(c.Request().Context(), api.Tenant(c), c.Param("id"))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, dev)
}

type updateDeviceRequest struct {
	Name     string                 `json:"name,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (a *API) updateDevice(c *echo.Context) error {
	var req updateDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := a.store.UpdateDevice(c.Request().Context(), api.Tenant(c), c.Param("id"), req.Name, req.Metadata); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *API) deleteDevice(c *echo.Context) error {
	if err := a.store.DeleteDevice(c.Request().Context(), api.Tenant(c), c.Param("id")); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

type dispatchCommandRequest struct {
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

func (a *API) dispatchCommand(c *echo.Context) error {
	var req dispatchCommandRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CommandType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command_type is required")
	}
	cmd, err := a.router.Dispatch(c.Request().Context(), api.Tenant(c), c.Param("id"), req.CommandType, req.Parameters)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, cmd)
}

func (a *API) listCommands(c *echo.Context) error {
	cmds, err := a.store.ListCommands(c.Request().Context(), c.Param("id"), 0)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, cmds)
}

type registerClientRequest struct {
	Name     string                 `json:"name"`
	Type     string                 `json:"client_type,omitempty"`
	OS       string                 `json:"os,omitempty"`
	Version  string                 `json:"version,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type registerClientResponse struct {
	HostClient
	Token string `json:"token"`
}

func (a *API) registerClient(c *echo.Context) error {
	tenant := api.Tenant(c)
	var req registerClientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	hc, err := a.store.CreateHostClient(c.Request().Context(), tenant, req.Name, req.Type, req.OS, req.Version, req.Metadata)
	if err != nil {
		return api.MapServiceError(err)
	}
	token, err := MintHostClientToken(hostClientSecret, hc.ID, tenant)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusCreated, registerClientResponse{HostClient: *hc, Token: token})
}

func (a *API) listClients(c *echo.Context) error {
	clients, err := a.store.ListHostClients(c.Request().Context(), api.Tenant(c))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, clients)
}

func (a *API) deleteClient(c *echo.Context) error {
	if err := a.store.DeleteHostClient(c.Request().Context(), api.Tenant(c), c.Param("id")); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

// webhookControlRequest mirrors ruleengine.DeviceControlRequest — the two
// types are kept separate because they belong to different services and
// must not import each other.
type webhookControlRequest struct {
	Tenant      string                 `json:"workspace_id"`
	DeviceID    string                 `json:"device_id"`
	CommandType string                 `json:"command_type"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// webhookControl is the internal endpoint the Rule Engine's device_control
// action dispatches to (spec §4.4, §4.6, §6 "/api/webhook/control"). It is
// not tenant-scoped via X-Workspace-ID/RequireBearer — the caller is the
// Rule Engine service, not a browser or an agent — so the tenant travels in
// the body instead.
func (a *API) webhookControl(c *echo.Context) error {
	var req webhookControlRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Tenant == "" || req.DeviceID == "" || req.CommandType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace_id, device_id, and command_type are required")
	}
	cmd, err := a.router.Dispatch(c.Request().Context(), req.Tenant, req.DeviceID, req.CommandType, req.Parameters)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, cmd)
}
