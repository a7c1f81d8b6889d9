package http

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/domain"
)

type Inventory interface {
	CreateBook(ctx context.Context, actor auth.Principal, in app.NewBook) (domain.Book, error)
	UpdateBook(ctx context.Context, actor auth.Principal, id int64, in app.BookUpdate) (domain.Book, error)
	GetBook(ctx context.Context, id int64) (domain.Book, error)
	ListBooks(ctx context.Context, filter domain.BookFilter) ([]domain.Book, error)
	IsAvailable(ctx context.Context, id int64) (bool, error)
}

type Loans interface {
	CheckOut(ctx context.Context, actor auth.Principal, in app.CheckOutInput) (domain.Loan, error)
	ReturnLoan(ctx context.Context, actor auth.Principal, loanID int64) (domain.Loan, error)
	GetLoan(ctx context.Context, id int64) (domain.Loan, error)
	ActiveLoansForStudent(ctx context.Context, studentID int64) ([]domain.Loan, error)
	ActiveLoansForActor(ctx context.Context, actor auth.Principal) ([]domain.Loan, error)
}

type Reservations interface {
	Create(ctx context.Context, actor auth.Principal, in app.CreateReservationInput) (domain.Reservation, error)
	Process(ctx context.Context, actor auth.Principal, id int64, action string) (domain.Reservation, error)
	ApproveAndCreateLoan(ctx context.Context, actor auth.Principal, id int64) (domain.Loan, error)
	Cancel(ctx context.Context, actor auth.Principal, id int64) (domain.Reservation, error)
	ListPending(ctx context.Context, actor auth.Principal) ([]domain.Reservation, error)
	ListByStudent(ctx context.Context, actor auth.Principal, studentID int64) ([]domain.Reservation, error)
}

type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

type Services struct {
	Inventory    Inventory
	Loans        Loans
	Reservations Reservations
	Sweeper      Sweeper
}

// ServicesFrom adapts the wired lending services to the HTTP surface.
func ServicesFrom(l *app.Lending) Services {
	return Services{
		Inventory:    l.Inventory,
		Loans:        l.Loans,
		Reservations: l.Reservations,
		Sweeper:      l.Sweeper,
	}
}

type Config struct {
	JWTSecret   string
	CORSOrigins []string
	Logger      *slog.Logger
}

type Server struct {
	svc    Services
	logger *slog.Logger
}

// NewServer builds the echo router for the lending API.
func NewServer(svc Services, cfg Config) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = s.handleEchoError

	registerMiddlewares(e, logger, cfg.CORSOrigins)

	e.GET("/health", HealthHandler)

	api := e.Group("/api", authenticate(cfg.JWTSecret)...)

	api.GET("/books", s.listBooks)
	api.POST("/books", s.createBook)
	api.GET("/books/:id", s.getBook)
	api.PUT("/books/:id", s.updateBook)
	api.GET("/books/:id/availability", s.bookAvailability)

	api.POST("/loans/checkout", s.checkOut)
	api.PUT("/loans/return/:loanId", s.returnLoan)
	api.GET("/loans/active/student/:studentId", s.activeLoansForStudent)
	api.GET("/loans/active/me", s.myActiveLoans)
	api.GET("/loans/:id", s.getLoan)

	api.POST("/reservations", s.createReservation)
	api.PUT("/reservations/approve/:id", s.processReservation(domain.ReservationActionApprove))
	api.PUT("/reservations/reject/:id", s.processReservation(domain.ReservationActionReject))
	api.PUT("/reservations/approve-and-loan/:id", s.approveAndLoan)
	api.PUT("/reservations/cancel/:id", s.cancelReservation)
	api.GET("/reservations/pending", s.pendingReservations)
	api.GET("/reservations/student/:studentId", s.studentReservations)

	api.POST("/admin/sweeps/overdue", s.runOverdueSweep)

	e.RouteNotFound("/*", NotFoundHandler)
	return e
}
