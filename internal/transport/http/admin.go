package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// POST /api/admin/sweeps/overdue (staff)
func (s *Server) runOverdueSweep(c echo.Context) error {
	actor := principalOf(c)
	if err := actor.RequireStaff(); err != nil {
		return s.fail(c, err)
	}
	n, err := s.svc.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	s.logger.InfoContext(c.Request().Context(), "manual overdue sweep",
		slog.String("actor", actor.Subject), slog.Int("marked", n))
	return c.JSON(http.StatusOK, sweepResponse{Marked: n})
}
