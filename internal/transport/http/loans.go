package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/library-lending/internal/app"
)

// POST /api/loans/checkout
func (s *Server) checkOut(c echo.Context) error {
	var req checkoutRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	loan, err := s.svc.Loans.CheckOut(c.Request().Context(), principalOf(c), app.CheckOutInput{
		BookID:    req.BookID,
		StudentID: req.StudentID,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toLoanResponse(loan))
}

// PUT /api/loans/return/:loanId
func (s *Server) returnLoan(c echo.Context) error {
	id, err := pathID(c, "loanId")
	if err != nil {
		return s.fail(c, err)
	}
	loan, err := s.svc.Loans.ReturnLoan(c.Request().Context(), principalOf(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// GET /api/loans/:id (staff)
func (s *Server) getLoan(c echo.Context) error {
	if err := principalOf(c).RequireStaff(); err != nil {
		return s.fail(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	loan, err := s.svc.Loans.GetLoan(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResponse(loan))
}

// GET /api/loans/active/student/:studentId (staff)
func (s *Server) activeLoansForStudent(c echo.Context) error {
	if err := principalOf(c).RequireStaff(); err != nil {
		return s.fail(c, err)
	}
	id, err := pathID(c, "studentId")
	if err != nil {
		return s.fail(c, err)
	}
	loans, err := s.svc.Loans.ActiveLoansForStudent(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResponses(loans))
}

// GET /api/loans/active/me
func (s *Server) myActiveLoans(c echo.Context) error {
	loans, err := s.svc.Loans.ActiveLoansForActor(c.Request().Context(), principalOf(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toLoanResponses(loans))
}
