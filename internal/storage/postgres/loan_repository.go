package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/cimillas/library-lending/internal/domain"
)

const loanColumns = `id, book_id, student_id, check_out_date, due_date, return_date, status, librarian_checkout, librarian_checkin`

var loanColumnList = []any{
	"id", "book_id", "student_id", "check_out_date", "due_date",
	"return_date", "status", "librarian_checkout", "librarian_checkin",
}

type LoanRepository struct {
	db *db
}

func (r *LoanRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.withTx(ctx, fn)
}

// LockStudent takes a transaction-scoped advisory lock, so two checkouts for
// the same student cannot both pass the active-loan count.
func (r *LoanRepository) LockStudent(ctx context.Context, studentID int64) error {
	if txFromContext(ctx) == nil {
		return nil
	}
	const stmt = `SELECT pg_advisory_xact_lock(hashtextextended('student-loans:' || $1::text, 0))`
	if _, err := r.db.q(ctx).Exec(ctx, stmt, studentID); err != nil {
		return wrapErr("lock student", err)
	}
	return nil
}

func (r *LoanRepository) CountLoans(ctx context.Context, studentID int64, status domain.LoanStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM loans WHERE student_id = $1 AND status = $2`
	var n int
	if err := r.db.q(ctx).QueryRow(ctx, query, studentID, string(status)).Scan(&n); err != nil {
		return 0, wrapErr("count loans", err)
	}
	return n, nil
}

func (r *LoanRepository) CreateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	const stmt = `
INSERT INTO loans (book_id, student_id, check_out_date, due_date, return_date, status, librarian_checkout, librarian_checkin)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

	err := r.db.q(ctx).QueryRow(ctx, stmt,
		loan.BookID,
		loan.StudentID,
		loan.CheckOutDate,
		loan.DueDate,
		loan.ReturnDate,
		string(loan.Status),
		loan.LibrarianCheckout,
		loan.LibrarianCheckin,
	).Scan(&loan.ID)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return domain.Loan{}, fmt.Errorf("%w: %d", domain.ErrBookNotFound, loan.BookID)
		}
		return domain.Loan{}, wrapErr("create loan", err)
	}
	return loan, nil
}

func (r *LoanRepository) GetLoan(ctx context.Context, id int64) (domain.Loan, error) {
	return r.get(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

func (r *LoanRepository) GetLoanForUpdate(ctx context.Context, id int64) (domain.Loan, error) {
	return r.get(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (r *LoanRepository) get(ctx context.Context, query string, id int64) (domain.Loan, error) {
	loan, err := scanLoan(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Loan{}, fmt.Errorf("%w: %d", domain.ErrLoanNotFound, id)
		}
		return domain.Loan{}, wrapErr("get loan", err)
	}
	return loan, nil
}

func (r *LoanRepository) FindLoans(ctx context.Context, filter domain.LoanFilter) ([]domain.Loan, error) {
	ds := dialect.From("loans").Prepared(true).
		Select(loanColumnList...).
		Order(goqu.I("id").Asc())

	where := goqu.Ex{}
	if filter.BookID != 0 {
		where["book_id"] = filter.BookID
	}
	if filter.StudentID != 0 {
		where["student_id"] = filter.StudentID
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where["status"] = statuses
	}
	if len(where) > 0 {
		ds = ds.Where(where)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find loans: %w", err)
	}
	return r.queryLoans(ctx, "find loans", query, args...)
}

func (r *LoanRepository) UpdateLoan(ctx context.Context, loan domain.Loan) error {
	const stmt = `
UPDATE loans
SET status = $2, return_date = $3, librarian_checkin = $4
WHERE id = $1`

	tag, err := r.db.q(ctx).Exec(ctx, stmt, loan.ID, string(loan.Status), loan.ReturnDate, loan.LibrarianCheckin)
	if err != nil {
		return wrapErr("update loan", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrLoanNotFound, loan.ID)
	}
	return nil
}

// MarkOverdue flips every due ACTIVE loan in one statement. Rows locked by an
// in-flight return are skipped rather than waited on.
func (r *LoanRepository) MarkOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	due := dialect.From("loans").
		Select("id").
		Where(goqu.Ex{"status": string(domain.LoanStatusActive)}, goqu.C("due_date").Lt(now)).
		ForUpdate(exp.SkipLocked)

	ds := dialect.Update("loans").Prepared(true).
		Set(goqu.Record{"status": string(domain.LoanStatusOverdue)}).
		Where(goqu.C("id").In(due)).
		Returning(loanColumnList...)

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build mark overdue: %w", err)
	}
	return r.queryLoans(ctx, "mark overdue", query, args...)
}

func (r *LoanRepository) queryLoans(ctx context.Context, op, query string, args ...any) ([]domain.Loan, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}

func scanLoan(row pgx.Row) (domain.Loan, error) {
	var (
		loan     domain.Loan
		status   string
		returned *time.Time
	)
	err := row.Scan(
		&loan.ID,
		&loan.BookID,
		&loan.StudentID,
		&loan.CheckOutDate,
		&loan.DueDate,
		&returned,
		&status,
		&loan.LibrarianCheckout,
		&loan.LibrarianCheckin,
	)
	loan.Status = domain.LoanStatus(status)
	loan.ReturnDate = returned
	return loan, err
}
