package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/domain"
	"github.com/cimillas/library-lending/internal/retry"
)

// BookReader is the plain, unlocked catalog lookup.
type BookReader interface {
	GetBook(ctx context.Context, id int64) (domain.Book, error)
}

// LoanIssuer runs the locked issue path inside the caller's transaction.
type LoanIssuer interface {
	CreateLoanRecord(ctx context.Context, actor auth.Principal, bookID, studentID int64) (domain.Loan, error)
}

type ReservationService struct {
	repo      ReservationRepository
	books     BookReader
	loans     LoanIssuer
	directory StudentDirectory
	clock     clock.Clock
	logger    *slog.Logger
	retryOpts []retry.Option
}

type ReservationServiceOption func(*ReservationService)

func WithReservationLogger(l *slog.Logger) ReservationServiceOption {
	return func(s *ReservationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithReservationRetry(opts ...retry.Option) ReservationServiceOption {
	return func(s *ReservationService) { s.retryOpts = append(s.retryOpts, opts...) }
}

func NewReservationService(
	repo ReservationRepository,
	books BookReader,
	loans LoanIssuer,
	dir StudentDirectory,
	clk clock.Clock,
	opts ...ReservationServiceOption,
) *ReservationService {
	svc := &ReservationService{
		repo:      repo,
		books:     books,
		loans:     loans,
		directory: dir,
		clock:     clk,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateReservationInput struct {
	StudentID int64
	BookID    int64
	// Date defaults to today. It is truncated to the start of the day.
	Date *time.Time
}

// Create records a PENDING reservation. Students may only reserve for themselves.
func (s *ReservationService) Create(ctx context.Context, actor auth.Principal, in CreateReservationInput) (domain.Reservation, error) {
	if err := actor.RequireStudent(); err != nil {
		return domain.Reservation{}, err
	}
	if in.StudentID <= 0 || in.BookID <= 0 {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	if err := requireOwner(ctx, s.directory, actor, in.StudentID); err != nil {
		s.logger.WarnContext(ctx, "reservation for another student rejected",
			slog.String("actor", actor.Subject), slog.Int64("student_id", in.StudentID))
		return domain.Reservation{}, err
	}
	if err := ensureStudent(ctx, s.directory, in.StudentID); err != nil {
		return domain.Reservation{}, err
	}
	if _, err := s.books.GetBook(ctx, in.BookID); err != nil {
		return domain.Reservation{}, err
	}

	date := s.clock.Now()
	if in.Date != nil {
		date = *in.Date
	}
	date = startOfDay(date)

	var result domain.Reservation
	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			existing, err := s.repo.FindReservations(txCtx, domain.ReservationFilter{
				BookID:    in.BookID,
				StudentID: in.StudentID,
				Statuses:  domain.ActiveReservationStatuses,
			})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return fmt.Errorf("%w: reservation %d", domain.ErrDuplicateReservation, existing[0].ID)
			}
			created, err := s.repo.CreateReservation(txCtx, domain.Reservation{
				BookID:          in.BookID,
				StudentID:       in.StudentID,
				ReservationDate: date,
				Status:          domain.ReservationStatusPending,
			})
			if err != nil {
				return err
			}
			result = created
			return nil
		})
	}, s.retryOpts...)
	if err != nil {
		return domain.Reservation{}, err
	}

	s.logger.InfoContext(ctx, "reservation created",
		slog.Int64("reservation_id", result.ID),
		slog.Int64("book_id", result.BookID),
		slog.Int64("student_id", result.StudentID))
	return result, nil
}

// Process approves or rejects a PENDING reservation. Approval does not
// consume a copy.
func (s *ReservationService) Process(ctx context.Context, actor auth.Principal, id int64, action string) (domain.Reservation, error) {
	if err := actor.RequireStaff(); err != nil {
		return domain.Reservation{}, err
	}
	act, err := domain.ParseReservationAction(action)
	if err != nil {
		return domain.Reservation{}, err
	}

	r, err := s.transition(ctx, id, func(r *domain.Reservation) error {
		if r.Status != domain.ReservationStatusPending {
			return fmt.Errorf("%w: reservation %d is %s", domain.ErrInvalidReservationStatus, r.ID, r.Status)
		}
		return r.Transition(act.Target(), s.clock.Now(), actor.Subject)
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	s.logger.InfoContext(ctx, "reservation processed",
		slog.Int64("reservation_id", r.ID),
		slog.String("status", string(r.Status)),
		slog.String("actor", actor.Subject))
	return r, nil
}

// ApproveAndCreateLoan approves a PENDING reservation and lends the book in
// one transaction. The reservation ends CANCELLED since the loan fulfils it.
func (s *ReservationService) ApproveAndCreateLoan(ctx context.Context, actor auth.Principal, id int64) (domain.Loan, error) {
	if err := actor.RequireStaff(); err != nil {
		return domain.Loan{}, err
	}
	if id <= 0 {
		return domain.Loan{}, domain.ErrInvalidID
	}

	var loan domain.Loan
	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			r, err := s.repo.GetReservationForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			if r.Status != domain.ReservationStatusPending {
				return fmt.Errorf("%w: reservation %d is %s", domain.ErrInvalidReservationStatus, r.ID, r.Status)
			}
			now := s.clock.Now()
			if err := r.Transition(domain.ReservationStatusApproved, now, actor.Subject); err != nil {
				return err
			}

			created, err := s.loans.CreateLoanRecord(txCtx, actor, r.BookID, r.StudentID)
			if err != nil {
				return err
			}

			if err := r.Transition(domain.ReservationStatusCancelled, now, actor.Subject); err != nil {
				return err
			}
			if err := s.repo.UpdateReservation(txCtx, r); err != nil {
				return err
			}
			loan = created
			return nil
		})
	}, s.retryOpts...)
	if err != nil {
		s.logger.WarnContext(ctx, "approve and lend failed",
			slog.Int64("reservation_id", id), slog.String("code", domain.CodeOf(err)), slog.Any("error", err))
		return domain.Loan{}, err
	}

	s.logger.InfoContext(ctx, "reservation fulfilled by loan",
		slog.Int64("reservation_id", id),
		slog.Int64("loan_id", loan.ID),
		slog.String("actor", actor.Subject))
	return loan, nil
}

// Cancel lets a student withdraw their own PENDING reservation.
func (s *ReservationService) Cancel(ctx context.Context, actor auth.Principal, id int64) (domain.Reservation, error) {
	if id <= 0 {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	own, err := studentIDOf(ctx, s.directory, actor)
	if err != nil {
		return domain.Reservation{}, err
	}

	r, err := s.transition(ctx, id, func(r *domain.Reservation) error {
		if r.StudentID != own {
			return fmt.Errorf("%w: reservation %d", domain.ErrNotOwner, r.ID)
		}
		if r.Status != domain.ReservationStatusPending {
			return fmt.Errorf("%w: only pending reservations can be cancelled", domain.ErrInvalidReservationStatus)
		}
		return r.Transition(domain.ReservationStatusCancelled, s.clock.Now(), actor.Subject)
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	s.logger.InfoContext(ctx, "reservation cancelled", slog.Int64("reservation_id", r.ID))
	return r, nil
}

// CancelForCheckout retires APPROVED reservations for the pair once the book
// was lent directly. It reports ErrReservationNotFound when there is nothing
// to retire.
func (s *ReservationService) CancelForCheckout(ctx context.Context, actor auth.Principal, bookID, studentID int64) error {
	return s.repo.WithTx(ctx, func(txCtx context.Context) error {
		approved, err := s.repo.FindReservations(txCtx, domain.ReservationFilter{
			BookID:    bookID,
			StudentID: studentID,
			Statuses:  []domain.ReservationStatus{domain.ReservationStatusApproved},
			ForUpdate: true,
		})
		if err != nil {
			return err
		}
		if len(approved) == 0 {
			return fmt.Errorf("%w: no approved reservation for book %d student %d",
				domain.ErrReservationNotFound, bookID, studentID)
		}
		now := s.clock.Now()
		for i := range approved {
			if err := approved[i].Transition(domain.ReservationStatusCancelled, now, actor.Subject); err != nil {
				return err
			}
			if err := s.repo.UpdateReservation(txCtx, approved[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListPending returns reservations awaiting a decision, oldest first.
func (s *ReservationService) ListPending(ctx context.Context, actor auth.Principal) ([]domain.Reservation, error) {
	if err := actor.RequireStaff(); err != nil {
		return nil, err
	}
	return s.repo.FindReservations(ctx, domain.ReservationFilter{
		Statuses: []domain.ReservationStatus{domain.ReservationStatusPending},
	})
}

// ListByStudent returns a student's reservation history, newest first.
// Students may only read their own.
func (s *ReservationService) ListByStudent(ctx context.Context, actor auth.Principal, studentID int64) ([]domain.Reservation, error) {
	if !actor.IsStaff() {
		if err := requireOwner(ctx, s.directory, actor, studentID); err != nil {
			return nil, err
		}
	}
	if err := ensureStudent(ctx, s.directory, studentID); err != nil {
		return nil, err
	}
	return s.repo.FindReservations(ctx, domain.ReservationFilter{
		StudentID:   studentID,
		NewestFirst: true,
	})
}

func (s *ReservationService) transition(ctx context.Context, id int64, change func(*domain.Reservation) error) (domain.Reservation, error) {
	if id <= 0 {
		return domain.Reservation{}, domain.ErrInvalidID
	}
	var result domain.Reservation
	err := retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			r, err := s.repo.GetReservationForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			if err := change(&r); err != nil {
				return err
			}
			if err := s.repo.UpdateReservation(txCtx, r); err != nil {
				return err
			}
			result = r
			return nil
		})
	}, s.retryOpts...)
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
