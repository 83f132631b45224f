package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// APIKeyMiddleware guards service-to-service routes with a shared X-API-Key.
// An empty configured key disables the routes.
func APIKeyMiddleware(key string) echo.MiddlewareFunc {
	want := []byte(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(want) == 0 {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "internal api disabled"})
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if got == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			return next(c)
		}
	}
}
