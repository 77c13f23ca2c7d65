package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// DashboardAuth protects dashboard routes with HTTP basic auth.
// With an empty user the routes are left open.
//
// Usage:
//
//	g := e.Group("", middleware.DashboardAuth(cfg.Dashboard.AuthUser, cfg.Dashboard.AuthPassword))
func DashboardAuth(user, password string) echo.MiddlewareFunc {
	if user == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return echomw.BasicAuthWithConfig(echomw.BasicAuthConfig{
		Realm: "Login Required",
		Validator: func(u, p string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
			return userOK && passOK, nil
		},
	})
}
