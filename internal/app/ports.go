package app

import (
	"context"
	"time"

	"github.com/cimillas/library-lending/internal/domain"
)

// Each repository can open a transaction; a nested WithTx joins the
// transaction already carried by ctx, so the three repositories of one store
// share a single unit of work.

type BookRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetBook(ctx context.Context, id int64) (domain.Book, error)
	// GetBookForUpdate holds the book's row lock until the transaction ends.
	// Only inventory-mutating paths call it.
	GetBookForUpdate(ctx context.Context, id int64) (domain.Book, error)
	ListBooks(ctx context.Context, filter domain.BookFilter) ([]domain.Book, error)
	CreateBook(ctx context.Context, book domain.Book) (domain.Book, error)
	SaveBook(ctx context.Context, book domain.Book) error
}

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// CreateReservation fails with ErrDuplicateReservation when an active
	// reservation for the same book and student already exists.
	CreateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error)
	GetReservation(ctx context.Context, id int64) (domain.Reservation, error)
	GetReservationForUpdate(ctx context.Context, id int64) (domain.Reservation, error)
	FindReservations(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error)
	UpdateReservation(ctx context.Context, r domain.Reservation) error
}

type LoanRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockStudent serializes loan issuing for one student until the transaction ends.
	LockStudent(ctx context.Context, studentID int64) error
	CountLoans(ctx context.Context, studentID int64, status domain.LoanStatus) (int, error)
	CreateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error)
	GetLoan(ctx context.Context, id int64) (domain.Loan, error)
	GetLoanForUpdate(ctx context.Context, id int64) (domain.Loan, error)
	FindLoans(ctx context.Context, filter domain.LoanFilter) ([]domain.Loan, error)
	UpdateLoan(ctx context.Context, loan domain.Loan) error
	// MarkOverdue flips ACTIVE loans due before now to OVERDUE and returns
	// them. Loans locked by another transaction are skipped.
	MarkOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error)
}

// StudentDirectory is the external registry of students.
type StudentDirectory interface {
	Exists(ctx context.Context, studentID int64) (bool, error)
	FindIDByEmail(ctx context.Context, email string) (int64, error)
}

// Repositories groups the persistence collaborators of one store.
type Repositories struct {
	Books        BookRepository
	Reservations ReservationRepository
	Loans        LoanRepository
}
