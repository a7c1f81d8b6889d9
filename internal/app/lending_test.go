package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/domain"
	"github.com/cimillas/library-lending/internal/retry"
	"github.com/cimillas/library-lending/internal/storage/memory"
)

var (
	librarian = auth.Principal{Subject: "librarian@uni.edu", Roles: []auth.Role{auth.RoleLibrarian}}
	anna      = auth.Principal{Subject: "anna@uni.edu", Roles: []auth.Role{auth.RoleStudent}}
	boris     = auth.Principal{Subject: "boris@uni.edu", Roles: []auth.Role{auth.RoleStudent}}
)

const (
	annaID  int64 = 5
	borisID int64 = 6
)

type fakeDirectory struct {
	mu       sync.Mutex
	students map[int64]bool
	emails   map[string]int64
	err      error
}

func newFakeDirectory() *fakeDirectory {
	d := &fakeDirectory{students: map[int64]bool{}, emails: map[string]int64{}}
	d.add(annaID, anna.Subject)
	d.add(borisID, boris.Subject)
	for id := int64(100); id < 140; id++ {
		d.add(id, fmt.Sprintf("student%d@uni.edu", id))
	}
	return d
}

func (d *fakeDirectory) add(id int64, email string) {
	d.students[id] = true
	d.emails[email] = id
}

func (d *fakeDirectory) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDirectory) Exists(_ context.Context, id int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.students[id], nil
}

func (d *fakeDirectory) FindIDByEmail(_ context.Context, email string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}
	id, ok := d.emails[email]
	if !ok {
		return 0, domain.ErrStudentNotFound
	}
	return id, nil
}

type harness struct {
	store   *memory.Store
	dir     *fakeDirectory
	clock   *clock.Manual
	lending *app.Lending
}

var start = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewStore(memory.WithLockTimeout(2 * time.Second)),
		dir:   newFakeDirectory(),
		clock: clock.NewManual(start),
	}
	h.lending = app.NewLending(h.store.Repositories(), h.dir, h.clock,
		app.WithLogger(quietLogger()),
		app.WithRetry(retry.WithBaseDelay(time.Millisecond)),
	)
	return h
}

func (h *harness) book(t *testing.T, isbn string, total int) domain.Book {
	t.Helper()
	b, err := h.lending.Inventory.CreateBook(context.Background(), librarian, app.NewBook{
		Title: "Title " + isbn, Author: "Author", ISBN: isbn, TotalQuantity: total,
	})
	require.NoError(t, err)
	return b
}

func (h *harness) available(t *testing.T, bookID int64) int {
	t.Helper()
	b, err := h.store.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	require.NoError(t, b.Validate())
	return b.AvailableQuantity
}

func (h *harness) checkout(bookID, studentID int64) (domain.Loan, error) {
	return h.lending.Loans.CheckOut(context.Background(), librarian, app.CheckOutInput{BookID: bookID, StudentID: studentID})
}

func TestCheckOut_ThreeCopiesThreeStudents(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-a", 3)

	for _, student := range []int64{100, 101, 102} {
		loan, err := h.checkout(book.ID, student)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusActive, loan.Status)
		assert.Equal(t, start.Add(14*24*time.Hour), loan.DueDate)
		assert.Equal(t, librarian.Subject, loan.LibrarianCheckout)
	}

	got, err := h.lending.Inventory.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
	assert.Equal(t, domain.BookStatusLoaned, got.Status())

	_, err = h.checkout(book.ID, 103)
	require.ErrorIs(t, err, domain.ErrBookNotAvailable)
	assert.Equal(t, 0, h.available(t, book.ID))
}

func TestCheckOut_ReturnRestoresAvailability(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-rt", 2)

	loan, err := h.checkout(book.ID, annaID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.available(t, book.ID))

	h.clock.Advance(3 * 24 * time.Hour)
	returned, err := h.lending.Loans.ReturnLoan(context.Background(), librarian, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, h.clock.Now(), *returned.ReturnDate)
	assert.Equal(t, librarian.Subject, returned.LibrarianCheckin)
	assert.Equal(t, 2, h.available(t, book.ID))
}

func TestReturnLoan_SecondReturnFailsWithoutReleasing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-twice", 2)
	_, err := h.checkout(book.ID, borisID)
	require.NoError(t, err)
	loan, err := h.checkout(book.ID, annaID)
	require.NoError(t, err)

	_, err = h.lending.Loans.ReturnLoan(context.Background(), librarian, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.available(t, book.ID))

	_, err = h.lending.Loans.ReturnLoan(context.Background(), librarian, loan.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyReturned)
	assert.Equal(t, domain.KindBusinessRule, domain.KindOf(err))
	assert.Equal(t, 1, h.available(t, book.ID))

	_, err = h.lending.Loans.ReturnLoan(context.Background(), librarian, 999)
	require.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestCheckOut_ConcurrentOnLastCopy(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-race", 1)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(student int64) {
			defer wg.Done()
			_, err := h.checkout(book.ID, student)
			errs <- err
		}(100 + int64(i))
	}
	wg.Wait()
	close(errs)

	succeeded, unavailable := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrBookNotAvailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, unavailable)
	assert.Equal(t, 0, h.available(t, book.ID))
}

func TestCheckOut_LoanLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	var loans []domain.Loan
	for i := 0; i < 5; i++ {
		b := h.book(t, fmt.Sprintf("isbn-limit-%d", i), 1)
		loan, err := h.checkout(b.ID, annaID)
		require.NoError(t, err)
		loans = append(loans, loan)
	}

	extra := h.book(t, "isbn-limit-extra", 1)
	_, err := h.checkout(extra.ID, annaID)
	require.ErrorIs(t, err, domain.ErrLoanLimitExceeded)
	assert.Equal(t, 1, h.available(t, extra.ID))

	_, err = h.lending.Loans.ReturnLoan(context.Background(), librarian, loans[0].ID)
	require.NoError(t, err)
	_, err = h.checkout(extra.ID, annaID)
	require.NoError(t, err)
}

func TestCheckOut_ConcurrentLoanLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for i := 0; i < 4; i++ {
		b := h.book(t, fmt.Sprintf("isbn-pre-%d", i), 1)
		_, err := h.checkout(b.ID, annaID)
		require.NoError(t, err)
	}

	const n = 6
	books := make([]domain.Book, n)
	for i := range books {
		books[i] = h.book(t, fmt.Sprintf("isbn-par-%d", i), 1)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, b := range books {
		wg.Add(1)
		go func(bookID int64) {
			defer wg.Done()
			_, err := h.checkout(bookID, annaID)
			errs <- err
		}(b.ID)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrLoanLimitExceeded)
	}
	assert.Equal(t, 1, succeeded)

	active, err := h.lending.Loans.ActiveLoansForStudent(context.Background(), annaID)
	require.NoError(t, err)
	assert.Len(t, active, 5)
}

func TestReturnLoan_RollbackKeepsLoanLimit(t *testing.T) {
	t.Parallel()
	store := memory.NewStore(memory.WithLockTimeout(200 * time.Millisecond))
	h := &harness{store: store, dir: newFakeDirectory(), clock: clock.NewManual(start)}
	h.lending = app.NewLending(store.Repositories(), h.dir, h.clock,
		app.WithLogger(quietLogger()),
		app.WithRetry(retry.WithMaxAttempts(1)),
	)
	ctx := context.Background()

	books := make([]domain.Book, 5)
	loans := make([]domain.Loan, 5)
	for i := range books {
		books[i] = h.book(t, fmt.Sprintf("isbn-held-%d", i), 1)
		loan, err := h.checkout(books[i].ID, annaID)
		require.NoError(t, err)
		loans[i] = loan
	}
	extra := h.book(t, "isbn-held-extra", 1)

	// Keep the first book locked so the return cannot finish and rolls back.
	held := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- store.WithTx(ctx, func(txCtx context.Context) error {
			if _, err := store.GetBookForUpdate(txCtx, books[0].ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	returnErr := make(chan error, 1)
	go func() {
		_, err := h.lending.Loans.ReturnLoan(ctx, librarian, loans[0].ID)
		returnErr <- err
	}()
	time.Sleep(80 * time.Millisecond)

	_, checkoutErr := h.checkout(extra.ID, annaID)
	err := <-returnErr
	close(release)
	require.NoError(t, <-holderDone)

	require.ErrorIs(t, err, domain.ErrLockTimeout)
	require.Error(t, checkoutErr)
	assert.True(t, errors.Is(checkoutErr, domain.ErrLoanLimitExceeded) || errors.Is(checkoutErr, domain.ErrLockTimeout),
		"unexpected checkout error: %v", checkoutErr)

	active, err := h.lending.Loans.ActiveLoansForStudent(ctx, annaID)
	require.NoError(t, err)
	assert.Len(t, active, 5)
	assert.Equal(t, 1, h.available(t, extra.ID))
	assert.Equal(t, 0, h.available(t, books[0].ID))
}

type failingLoans struct {
	app.LoanRepository
}

func (failingLoans) CreateLoan(context.Context, domain.Loan) (domain.Loan, error) {
	return domain.Loan{}, errors.New("disk full")
}

func TestCheckOut_LoanInsertFailureRollsBackCopy(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-fail", 1)

	repos := h.store.Repositories()
	repos.Loans = failingLoans{LoanRepository: h.store}
	lending := app.NewLending(repos, h.dir, h.clock, app.WithLogger(quietLogger()))

	_, err := lending.Loans.CheckOut(context.Background(), librarian, app.CheckOutInput{BookID: book.ID, StudentID: annaID})
	require.Error(t, err)
	assert.Equal(t, domain.KindUnexpected, domain.KindOf(err))
	assert.Equal(t, 1, h.available(t, book.ID))
}

func TestCheckOut_Authorization(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-auth", 1)

	_, err := h.lending.Loans.CheckOut(context.Background(), anna, app.CheckOutInput{BookID: book.ID, StudentID: annaID})
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	assert.Equal(t, 1, h.available(t, book.ID))
}

func TestCheckOut_StudentDirectory(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-dir", 1)

	_, err := h.checkout(book.ID, 4242)
	require.ErrorIs(t, err, domain.ErrStudentNotFound)

	h.dir.fail(fmt.Errorf("%w: connection refused", domain.ErrDirectoryUnavailable))
	_, err = h.checkout(book.ID, annaID)
	require.ErrorIs(t, err, domain.ErrDirectoryUnavailable)
	assert.NotErrorIs(t, err, domain.ErrStudentNotFound)
	assert.Equal(t, 1, h.available(t, book.ID))
}

func TestCheckOut_RetiresApprovedReservation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	book := h.book(t, "isbn-retire", 2)

	r, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
	require.NoError(t, err)
	_, err = h.lending.Reservations.Process(ctx, librarian, r.ID, "approve")
	require.NoError(t, err)

	_, err = h.checkout(book.ID, annaID)
	require.NoError(t, err)

	got, err := h.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, got.Status)

	// No approved reservation left: the cleanup is skipped without failing.
	_, err = h.checkout(book.ID, annaID)
	require.NoError(t, err)
}

func TestApproveAndCreateLoan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("pending reservation becomes a loan", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		book := h.book(t, "isbn-b", 2)
		before := h.available(t, book.ID)

		r, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusPending, r.Status)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), r.ReservationDate)

		loan, err := h.lending.Reservations.ApproveAndCreateLoan(ctx, librarian, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LoanStatusActive, loan.Status)
		assert.Equal(t, book.ID, loan.BookID)
		assert.Equal(t, annaID, loan.StudentID)

		got, err := h.store.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusCancelled, got.Status)
		assert.Equal(t, librarian.Subject, got.ProcessedBy)
		assert.Equal(t, before-1, h.available(t, book.ID))
	})

	t.Run("no copy left keeps reservation pending", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		book := h.book(t, "isbn-none", 1)
		_, err := h.checkout(book.ID, borisID)
		require.NoError(t, err)

		r, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
		require.NoError(t, err)

		_, err = h.lending.Reservations.ApproveAndCreateLoan(ctx, librarian, r.ID)
		require.ErrorIs(t, err, domain.ErrBookNotAvailable)

		got, err := h.store.GetReservation(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReservationStatusPending, got.Status)
		assert.Nil(t, got.ProcessedDate)
	})

	t.Run("already approved is rejected", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		book := h.book(t, "isbn-approved", 1)
		r, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
		require.NoError(t, err)
		_, err = h.lending.Reservations.Process(ctx, librarian, r.ID, "APPROVE")
		require.NoError(t, err)

		_, err = h.lending.Reservations.ApproveAndCreateLoan(ctx, librarian, r.ID)
		require.ErrorIs(t, err, domain.ErrInvalidReservationStatus)
		assert.Equal(t, 1, h.available(t, book.ID))
	})
}

func TestReservation_CreateRules(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	book := h.book(t, "isbn-res", 1)

	_, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: borisID, BookID: book.ID})
	require.ErrorIs(t, err, domain.ErrNotOwner)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: 999})
	require.ErrorIs(t, err, domain.ErrBookNotFound)

	// Unknown and existing foreign ids answer the same way.
	_, err = h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: 4242, BookID: book.ID})
	require.ErrorIs(t, err, domain.ErrNotOwner)
	assert.NotErrorIs(t, err, domain.ErrStudentNotFound)

	_, err = h.lending.Reservations.Create(ctx, librarian, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
	require.ErrorIs(t, err, domain.ErrForbidden)

	first, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
	require.NoError(t, err)
	_, err = h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
	require.ErrorIs(t, err, domain.ErrDuplicateReservation)

	_, err = h.lending.Reservations.Process(ctx, librarian, first.ID, "approve")
	require.NoError(t, err)
	_, err = h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
	require.ErrorIs(t, err, domain.ErrDuplicateReservation)

	// Another student may still reserve the same title.
	_, err = h.lending.Reservations.Create(ctx, boris, app.CreateReservationInput{StudentID: borisID, BookID: book.ID})
	require.NoError(t, err)
}

func TestReservation_ProcessAndCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	book := h.book(t, "isbn-proc", 1)

	date := time.Date(2025, 4, 2, 15, 45, 0, 0, time.UTC)
	r, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID, Date: &date})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), r.ReservationDate)

	_, err = h.lending.Reservations.Process(ctx, librarian, r.ID, "archive")
	require.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = h.lending.Reservations.Process(ctx, anna, r.ID, "approve")
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.lending.Reservations.Cancel(ctx, boris, r.ID)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	approved, err := h.lending.Reservations.Process(ctx, librarian, r.ID, "Approve")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusApproved, approved.Status)
	assert.Equal(t, 1, h.available(t, book.ID), "approval must not consume a copy")

	_, err = h.lending.Reservations.Process(ctx, librarian, r.ID, "reject")
	require.ErrorIs(t, err, domain.ErrInvalidReservationStatus)

	_, err = h.lending.Reservations.Cancel(ctx, anna, r.ID)
	require.ErrorIs(t, err, domain.ErrInvalidReservationStatus)

	other := h.book(t, "isbn-proc-2", 1)
	r2, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: other.ID})
	require.NoError(t, err)
	cancelled, err := h.lending.Reservations.Cancel(ctx, anna, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, cancelled.Status)
	_, err = h.lending.Reservations.Process(ctx, librarian, r2.ID, "approve")
	require.ErrorIs(t, err, domain.ErrInvalidReservationStatus)

	_, err = h.lending.Reservations.Process(ctx, librarian, 999, "approve")
	require.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestReservation_ConcurrentApprovalOnlyOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	book := h.book(t, "isbn-double", 3)
	r, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: book.ID})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.lending.Reservations.ApproveAndCreateLoan(ctx, librarian, r.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInvalidReservationStatus)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, h.available(t, book.ID))
}

func TestReservation_Listings(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	b1 := h.book(t, "isbn-l1", 1)
	b2 := h.book(t, "isbn-l2", 1)

	d1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 2)
	r1, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: b1.ID, Date: &d1})
	require.NoError(t, err)
	r2, err := h.lending.Reservations.Create(ctx, anna, app.CreateReservationInput{StudentID: annaID, BookID: b2.ID, Date: &d2})
	require.NoError(t, err)
	_, err = h.lending.Reservations.Process(ctx, librarian, r1.ID, "reject")
	require.NoError(t, err)

	pending, err := h.lending.Reservations.ListPending(ctx, librarian)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r2.ID, pending[0].ID)

	_, err = h.lending.Reservations.ListPending(ctx, anna)
	require.ErrorIs(t, err, domain.ErrForbidden)

	history, err := h.lending.Reservations.ListByStudent(ctx, anna, annaID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, r2.ID, history[0].ID)
	assert.Equal(t, r1.ID, history[1].ID)

	_, err = h.lending.Reservations.ListByStudent(ctx, boris, annaID)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = h.lending.Reservations.ListByStudent(ctx, boris, 4242)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = h.lending.Reservations.ListByStudent(ctx, librarian, 4242)
	require.ErrorIs(t, err, domain.ErrStudentNotFound)
}

func TestSweepOverdue_ThenReturn(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	book := h.book(t, "isbn-c", 1)

	loan, err := h.checkout(book.ID, annaID)
	require.NoError(t, err)

	h.clock.Advance(15 * 24 * time.Hour)
	n, err := h.lending.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.lending.Loans.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusOverdue, got.Status)

	n, err = h.lending.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	returned, err := h.lending.Loans.ReturnLoan(ctx, librarian, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturned, returned.Status)
	assert.Equal(t, 1, h.available(t, book.ID))

	marked, err := h.lending.Loans.SweepOverdue(ctx, h.clock.Now().Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestOverdueLoansDoNotCountTowardsLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for i := 0; i < 5; i++ {
		b := h.book(t, fmt.Sprintf("isbn-od-%d", i), 1)
		_, err := h.checkout(b.ID, annaID)
		require.NoError(t, err)
	}
	h.clock.Advance(15 * 24 * time.Hour)
	_, err := h.lending.Sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	b := h.book(t, "isbn-od-next", 1)
	_, err = h.checkout(b.ID, annaID)
	require.NoError(t, err)
}

func TestActiveLoansForActor(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	book := h.book(t, "isbn-me", 2)
	_, err := h.checkout(book.ID, annaID)
	require.NoError(t, err)
	_, err = h.checkout(book.ID, borisID)
	require.NoError(t, err)

	mine, err := h.lending.Loans.ActiveLoansForActor(context.Background(), anna)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, annaID, mine[0].StudentID)
}
