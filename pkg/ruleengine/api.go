package ruleengine

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
)

// API exposes the §6 "Rule Engine service" REST surface over a Store.
type API struct {
	store *Store
}

// NewAPI constructs the handler set.
func NewAPI(store *Store) *API { return &API{store: store} }

// Register mounts every route under group.
func (a *API) Register(g *echo.Group) {
	g.POST("/rules", a.create)
	g.GET("/rules", a.list)
	g.GET("/rules/:id", a.get)
	g.PATCH("/rules/:id/activate", a.activate)
	g.PATCH("/rules/:id/deactivate", a.deactivate)
	g.DELETE("/rules/:id", a.delete)
	g.GET("/rules/:id/executions", a.executions)
}

type createRuleRequest struct {
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	EventType     string      `json:"event_type"`
	LivestreamID  string      `json:"livestream_id,omitempty"`
	LogicOperator Logic       `json:"logic_operator"`
	Conditions    []Condition `json:"conditions"`
	Actions       []Action    `json:"actions"`
}

func (a *API) create(c *echo.Context) error {
	tenant := api.Tenant(c)
	var req createRuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.EventType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and event_type are required")
	}

	rule := Rule{
		Tenant:        tenant,
		Name:          req.Name,
		Description:   req.Description,
		Status:        StatusDraft,
		EventKind:     req.EventType,
		SessionFilter: req.LivestreamID,
		LogicOperator: req.LogicOperator,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
	}
	created, err := a.store.Create(c.Request().Context(), rule)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *API) list(c *echo.Context) error {
	rules, err := a.store.List(c.Request().Context(), api.Tenant(c))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, rules)
}

func (a *API) get(c *echo.Context) error {
	rule, err := a.store.Get(c.Request().Context(), api.Tenant(c), c.Param("id"))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (a *API) activate(c *echo.Context) error {
	if err := a.store.SetStatus(c.Request().Context(), api.Tenant(c), c.Param("id"), StatusActive); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *API) deactivate(c *echo.Context) error {
	if err := a.store.SetStatus(c.Request().Context(), api.Tenant(c), c.Param("id"), StatusInactive); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *API) delete(c *echo.Context) error {
	if err := a.store.Delete(c.Request().Context(), api.Tenant(c), c.Param("id")); err != nil {
		return api.MapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (a *API) executions(c *echo.Context) error {
	execs, err := a.store.Executions(c.Request().Context(), api.Tenant(c), c.Param("id"))
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, execs)
}
