package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports basic liveness for the service.
func HealthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
