package authsvc

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
	"github.com/streamrelay/platform/pkg/httpauth"
)

// tokenTTL bounds how long a minted tenant-membership bearer token is valid
// (spec §6: "Token validation must reject expired ... tokens").
const tokenTTL = 24 * time.Hour

// MembershipFinder is the lookup the token mint needs; Store satisfies it.
type MembershipFinder interface {
	FindMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
}

// API exposes the single §4.8 auth surface: token minting against an
// existing membership.
type API struct {
	store  MembershipFinder
	signer *httpauth.Signer
}

// NewAPI wires the handler.
func NewAPI(store MembershipFinder, signer *httpauth.Signer) *API {
	return &API{store: store, signer: signer}
}

// Register mounts /api/auth/token, unauthenticated (it is the credential
// the rest of the platform's bearer middleware validates against).
func (a *API) Register(g *echo.Group) {
	g.POST("/auth/token", a.mint)
}

type mintTokenRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

type mintTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// mint validates that the caller is a known member of the requested tenant
// and, if so, issues a bearer token (spec §1: credential verification
// itself is out of scope; membership existence is the only check, see
// PlainTextNotice).
func (a *API) mint(c *echo.Context) error {
	var req mintTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TenantID == "" || req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id and user_id are required")
	}

	if _, err := a.store.FindMembership(c.Request().Context(), req.TenantID, req.UserID); err != nil {
		return api.MapServiceError(err)
	}

	token, err := a.signer.Mint(req.UserID, req.TenantID, "", tokenTTL)
	if err != nil {
		return api.MapServiceError(err)
	}
	return c.JSON(http.StatusOK, mintTokenResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(tokenTTL),
	})
}
