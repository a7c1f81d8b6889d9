package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c echo.Context) error {
	return writeError(c, http.StatusNotFound, codeNotFound, "not found")
}
