package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/domain"
	"github.com/cimillas/library-lending/internal/retry"
)

// CopyManager consumes and restores book copies inside the caller's transaction.
type CopyManager interface {
	AcquireCopy(ctx context.Context, bookID int64) (domain.Book, error)
	ReleaseCopy(ctx context.Context, bookID int64) (domain.Book, error)
}

// ReservationRetirer closes an approved reservation once its book is lent directly.
type ReservationRetirer interface {
	CancelForCheckout(ctx context.Context, actor auth.Principal, bookID, studentID int64) error
}

type LoanService struct {
	repo         LoanRepository
	inventory    CopyManager
	directory    StudentDirectory
	reservations ReservationRetirer
	clock        clock.Clock
	logger       *slog.Logger
	retryOpts    []retry.Option

	loanPeriod     time.Duration
	maxActiveLoans int
}

type LoanServiceOption func(*LoanService)

func WithLoanPeriod(d time.Duration) LoanServiceOption {
	return func(s *LoanService) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

func WithMaxActiveLoans(n int) LoanServiceOption {
	return func(s *LoanService) {
		if n > 0 {
			s.maxActiveLoans = n
		}
	}
}

func WithLoanLogger(l *slog.Logger) LoanServiceOption {
	return func(s *LoanService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoanRetry tunes how lock timeouts and conflicts are retried.
func WithLoanRetry(opts ...retry.Option) LoanServiceOption {
	return func(s *LoanService) { s.retryOpts = append(s.retryOpts, opts...) }
}

func NewLoanService(repo LoanRepository, inventory CopyManager, dir StudentDirectory, clk clock.Clock, opts ...LoanServiceOption) *LoanService {
	svc := &LoanService{
		repo:           repo,
		inventory:      inventory,
		directory:      dir,
		clock:          clk,
		logger:         slog.Default(),
		loanPeriod:     domain.DefaultLoanPeriod,
		maxActiveLoans: domain.DefaultMaxActiveLoans,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CheckOutInput struct {
	BookID    int64
	StudentID int64
}

// CheckOut lends one copy of a book to a student. The limit check, the copy
// decrement, the loan insert and the reservation cleanup form one transaction.
func (s *LoanService) CheckOut(ctx context.Context, actor auth.Principal, in CheckOutInput) (domain.Loan, error) {
	if err := actor.RequireStaff(); err != nil {
		return domain.Loan{}, err
	}
	if in.BookID <= 0 {
		return domain.Loan{}, domain.ErrInvalidID
	}
	if err := ensureStudent(ctx, s.directory, in.StudentID); err != nil {
		return domain.Loan{}, err
	}

	var loan domain.Loan
	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			created, err := s.CreateLoanRecord(txCtx, actor, in.BookID, in.StudentID)
			if err != nil {
				return err
			}
			if s.reservations != nil {
				err := s.reservations.CancelForCheckout(txCtx, actor, in.BookID, in.StudentID)
				if err != nil && !errors.Is(err, domain.ErrReservationNotFound) {
					return err
				}
			}
			loan = created
			return nil
		})
	}, s.retryOpts...)
	if err != nil {
		s.logRejection(ctx, "checkout failed", err,
			slog.Int64("book_id", in.BookID), slog.Int64("student_id", in.StudentID))
		return domain.Loan{}, err
	}

	s.logger.InfoContext(ctx, "book checked out",
		slog.Int64("loan_id", loan.ID),
		slog.Int64("book_id", loan.BookID),
		slog.Int64("student_id", loan.StudentID),
		slog.Time("due_date", loan.DueDate),
		slog.String("actor", actor.Subject))
	return loan, nil
}

// CreateLoanRecord is the locked issue path shared by direct checkout and
// reservation approval. Callers that need more writes in the same unit of
// work pass a transactional ctx.
func (s *LoanService) CreateLoanRecord(ctx context.Context, actor auth.Principal, bookID, studentID int64) (domain.Loan, error) {
	var result domain.Loan
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockStudent(txCtx, studentID); err != nil {
			return err
		}
		active, err := s.repo.CountLoans(txCtx, studentID, domain.LoanStatusActive)
		if err != nil {
			return err
		}
		if active >= s.maxActiveLoans {
			return fmt.Errorf("%w: student %d has %d active loans", domain.ErrLoanLimitExceeded, studentID, active)
		}

		if _, err := s.inventory.AcquireCopy(txCtx, bookID); err != nil {
			return err
		}

		loan := domain.NewLoan(bookID, studentID, s.clock.Now(), s.loanPeriod, actor.Subject)
		created, err := s.repo.CreateLoan(txCtx, loan)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return result, nil
}

// ReturnLoan closes a loan and puts its copy back on the shelf.
func (s *LoanService) ReturnLoan(ctx context.Context, actor auth.Principal, loanID int64) (domain.Loan, error) {
	if err := actor.RequireStaff(); err != nil {
		return domain.Loan{}, err
	}
	if loanID <= 0 {
		return domain.Loan{}, domain.ErrInvalidID
	}

	var result domain.Loan
	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			loan, err := s.repo.GetLoanForUpdate(txCtx, loanID)
			if err != nil {
				return err
			}
			// A return that rolls back must not let a concurrent checkout
			// count this loan as gone.
			if err := s.repo.LockStudent(txCtx, loan.StudentID); err != nil {
				return err
			}
			if err := loan.MarkReturned(s.clock.Now(), actor.Subject); err != nil {
				return err
			}
			if err := s.repo.UpdateLoan(txCtx, loan); err != nil {
				return err
			}
			if _, err := s.inventory.ReleaseCopy(txCtx, loan.BookID); err != nil {
				return err
			}
			result = loan
			return nil
		})
	}, s.retryOpts...)
	if err != nil {
		s.logRejection(ctx, "return failed", err, slog.Int64("loan_id", loanID))
		return domain.Loan{}, err
	}

	s.logger.InfoContext(ctx, "book returned",
		slog.Int64("loan_id", result.ID),
		slog.Int64("book_id", result.BookID),
		slog.String("actor", actor.Subject))
	return result, nil
}

func (s *LoanService) GetLoan(ctx context.Context, id int64) (domain.Loan, error) {
	if id <= 0 {
		return domain.Loan{}, domain.ErrInvalidID
	}
	return s.repo.GetLoan(ctx, id)
}

// ActiveLoansForStudent lists the student's ACTIVE loans.
func (s *LoanService) ActiveLoansForStudent(ctx context.Context, studentID int64) ([]domain.Loan, error) {
	if studentID <= 0 {
		return nil, domain.ErrInvalidID
	}
	return s.repo.FindLoans(ctx, domain.LoanFilter{
		StudentID: studentID,
		Statuses:  []domain.LoanStatus{domain.LoanStatusActive},
	})
}

// ActiveLoansForActor lists the ACTIVE loans of the student behind the principal.
func (s *LoanService) ActiveLoansForActor(ctx context.Context, actor auth.Principal) ([]domain.Loan, error) {
	if err := actor.RequireStudent(); err != nil {
		return nil, err
	}
	studentID, err := studentIDOf(ctx, s.directory, actor)
	if err != nil {
		return nil, err
	}
	return s.ActiveLoansForStudent(ctx, studentID)
}

// SweepOverdue promotes ACTIVE loans due before now to OVERDUE. It touches
// loan rows only.
func (s *LoanService) SweepOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	loans, err := s.repo.MarkOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("sweep overdue: %w", err)
	}
	for _, l := range loans {
		s.logger.InfoContext(ctx, "loan overdue",
			slog.Int64("loan_id", l.ID),
			slog.Int64("student_id", l.StudentID),
			slog.Time("due_date", l.DueDate))
	}
	return loans, nil
}

func (s *LoanService) logRejection(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("code", domain.CodeOf(err)), slog.Any("error", err))
	level := slog.LevelWarn
	switch domain.KindOf(err) {
	case domain.KindIllegalState, domain.KindUnexpected:
		level = slog.LevelError
	}
	s.logger.LogAttrs(ctx, level, msg, attrs...)
}
