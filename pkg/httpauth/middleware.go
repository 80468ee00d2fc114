package httpauth

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
)

// RequireBearer returns middleware that validates the Authorization: Bearer
// header against signer and rewrites X-Workspace-ID to the token's tenant,
// so handlers and the tenant-scoped store layer always see the authoritative
// value instead of a caller-supplied one.
func RequireBearer(signer *Signer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			authz := c.Request().Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := signer.Validate(strings.TrimPrefix(authz, prefix))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			api.SetTenant(c, claims.WorkspaceID)
			return next(c)
		}
	}
}
