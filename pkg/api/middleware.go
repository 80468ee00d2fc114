// Package api provides HTTP helpers shared by every service's echo router:
// security headers, tenant-scoping helpers, and service-error-to-HTTP mapping.
package api

import (
	echo "github.com/labstack/echo/v5"
)

// TenantHeader is the header carrying the authoritative tenant for a request,
// as set by the bearer-credential middleware in pkg/httpauth after validating
// the token (see spec §6 "Tenant scoping").
const TenantHeader = "X-Workspace-ID"

// SecurityHeaders returns middleware that sets standard security response headers.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// Tenant returns the authoritative tenant for the request. The bearer-auth
// middleware in pkg/httpauth validates the token and rewrites this header to
// the tenant encoded in the token before the request reaches any handler, so
// handlers never need to re-validate it.
func Tenant(c *echo.Context) string {
	return c.Request().Header.Get(TenantHeader)
}

// SetTenant overwrites the tenant header on the underlying request. Called
// only by pkg/httpauth after successful token validation.
func SetTenant(c *echo.Context, tenant string) {
	c.Request().Header.Set(TenantHeader, tenant)
}
