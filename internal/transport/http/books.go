package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/domain"
)

// GET /api/books?title=
func (s *Server) listBooks(c echo.Context) error {
	books, err := s.svc.Inventory.ListBooks(c.Request().Context(), domain.BookFilter{
		TitleContains: strings.TrimSpace(c.QueryParam("title")),
	})
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]bookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, toBookResponse(b))
	}
	return c.JSON(http.StatusOK, out)
}

// GET /api/books/:id
func (s *Server) getBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	book, err := s.svc.Inventory.GetBook(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toBookResponse(book))
}

// GET /api/books/:id/availability
func (s *Server) bookAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	ok, err := s.svc.Inventory.IsAvailable(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, availabilityResponse{BookID: id, Available: ok})
}

// POST /api/books (staff)
func (s *Server) createBook(c echo.Context) error {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	book, err := s.svc.Inventory.CreateBook(c.Request().Context(), principalOf(c), app.NewBook{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Genre:         req.Genre,
		TotalQuantity: req.TotalQuantity,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toBookResponse(book))
}

// PUT /api/books/:id (staff)
func (s *Server) updateBook(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var req bookRequest
	if err := bind(c, &req); err != nil {
		return s.fail(c, err)
	}
	book, err := s.svc.Inventory.UpdateBook(c.Request().Context(), principalOf(c), id, app.BookUpdate{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		Genre:         req.Genre,
		TotalQuantity: req.TotalQuantity,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, toBookResponse(book))
}
