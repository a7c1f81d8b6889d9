package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/domain"
)

// POST /api/reservations
func (s *Server) createReservation(c echo.Context) error {
	var req reservationRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	res, err := s.svc.Reservations.Create(c.Request().Context(), principalOf(c), app.CreateReservationInput{
		StudentID: req.StudentID,
		BookID:    req.BookID,
		Date:      req.date(),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(res))
}

// PUT /api/reservations/{approve,reject}/:id
func (s *Server) processReservation(action domain.ReservationAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return s.fail(c, err)
		}
		res, err := s.svc.Reservations.Process(c.Request().Context(), principalOf(c), id, string(action))
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(http.StatusOK, toReservationResponse(res))
	}
}

// PUT /api/reservations/approve-and-loan/:id
func (s *Server) approveAndLoan(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	loan, err := s.svc.Reservations.ApproveAndCreateLoan(c.Request().Context(), principalOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toLoanResponse(loan))
}

// PUT /api/reservations/cancel/:id
func (s *Server) cancelReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	res, err := s.svc.Reservations.Cancel(c.Request().Context(), principalOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(res))
}

// GET /api/reservations/pending
func (s *Server) pendingReservations(c echo.Context) error {
	rs, err := s.svc.Reservations.ListPending(c.Request().Context(), principalOf(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponses(rs))
}

// GET /api/reservations/student/:studentId
func (s *Server) studentReservations(c echo.Context) error {
	id, err := pathID(c, "studentId")
	if err != nil {
		return s.fail(c, err)
	}
	rs, err := s.svc.Reservations.ListByStudent(c.Request().Context(), principalOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponses(rs))
}
