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

const reservationColumns = `id, book_id, student_id, reservation_date, status, processed_date, processed_by`

type ReservationRepository struct {
	db *db
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.withTx(ctx, fn)
}

// CreateReservation relies on the partial unique index over active
// reservations, so a concurrent duplicate fails here even if it slipped past
// the caller's check.
func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	const stmt = `
INSERT INTO reservations (book_id, student_id, reservation_date, status, processed_date, processed_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	err := r.db.q(ctx).QueryRow(ctx, stmt,
		res.BookID,
		res.StudentID,
		res.ReservationDate,
		string(res.Status),
		res.ProcessedDate,
		res.ProcessedBy,
	).Scan(&res.ID)
	if err != nil {
		return domain.Reservation{}, reservationWriteErr("create reservation", res, err)
	}
	return res, nil
}

func (r *ReservationRepository) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	return r.get(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
}

func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, id int64) (domain.Reservation, error) {
	return r.get(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) get(ctx context.Context, query string, id int64) (domain.Reservation, error) {
	res, err := scanReservation(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, fmt.Errorf("%w: %d", domain.ErrReservationNotFound, id)
		}
		return domain.Reservation{}, wrapErr("get reservation", err)
	}
	return res, nil
}

func (r *ReservationRepository) FindReservations(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	ds := dialect.From("reservations").Prepared(true).Select(goqu.L(reservationColumns))

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

	if filter.NewestFirst {
		ds = ds.Order(goqu.I("reservation_date").Desc(), goqu.I("id").Desc())
	} else {
		ds = ds.Order(goqu.I("reservation_date").Asc(), goqu.I("id").Asc())
	}
	if filter.ForUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find reservations: %w", err)
	}
	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("find reservations", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, wrapErr("scan reservation", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("find reservations", err)
	}
	return out, nil
}

func (r *ReservationRepository) UpdateReservation(ctx context.Context, res domain.Reservation) error {
	const stmt = `
UPDATE reservations
SET status = $2, processed_date = $3, processed_by = $4
WHERE id = $1`

	tag, err := r.db.q(ctx).Exec(ctx, stmt, res.ID, string(res.Status), res.ProcessedDate, res.ProcessedBy)
	if err != nil {
		return reservationWriteErr("update reservation", res, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrReservationNotFound, res.ID)
	}
	return nil
}

func reservationWriteErr(op string, res domain.Reservation, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: book %d student %d", domain.ErrDuplicateReservation, res.BookID, res.StudentID)
	}
	if pgCode(err) == pgerrcode.ForeignKeyViolation {
		return fmt.Errorf("%w: %d", domain.ErrBookNotFound, res.BookID)
	}
	return wrapErr(op, err)
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var (
		res       domain.Reservation
		status    string
		processed *time.Time
	)
	err := row.Scan(
		&res.ID,
		&res.BookID,
		&res.StudentID,
		&res.ReservationDate,
		&status,
		&processed,
		&res.ProcessedBy,
	)
	res.Status = domain.ReservationStatus(status)
	res.ProcessedDate = processed
	return res, err
}
