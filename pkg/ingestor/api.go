package ingestor

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
)

// API exposes the §6 "Ingestor service" REST surface over a Manager.
type API struct {
	manager *Manager
}

// NewAPI constructs the handler set.
func NewAPI(manager *Manager) *API { return &API{manager: manager} }

// Register mounts every route under group.
func (a *API) Register(g *echo.Group) {
	g.POST("/livestreams/connect", a.connect)
	g.POST("/livestreams/:id/disconnect", a.disconnect)
	g.GET("/livestreams", a.list)
	g.GET("/livestreams/:id", a.get)
}

type connectRequest struct {
	TikTokInput string `json:"tiktok_input"`
}

func (a *API) connect(c *echo.Context) error {
	tenant := api.Tenant(c)
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := a.manager.Connect(c.Request().Context(), tenant, req.TikTokInput)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (a *API) disconnect(c *echo.Context) error {
	tenant := api.Tenant(c)
	if err := a.manager.Disconnect(c.Request().Context(), tenant, c.Param("id")); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *API) list(c *echo.Context) error {
	tenant := api.Tenant(c)
	sessions, err := a.manager.store.List(c.Request().Context(), tenant)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (a *API) get(c *echo.Context) error {
	tenant := api.Tenant(c)
	sess, err := a.manager.store.Get(c.Request().Context(), tenant, c.Param("id"))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, sess)
}
