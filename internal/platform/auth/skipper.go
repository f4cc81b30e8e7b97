package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that bypass authentication. These are
// infrastructure endpoints that must be reachable without credentials.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper returns true for requests whose path should skip
// authentication, so health checks remain accessible without a bearer
// token.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
