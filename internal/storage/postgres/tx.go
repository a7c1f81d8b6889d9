package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/domain"
)

var dialect = goqu.Dialect("postgres")

type txKey struct{}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// db is shared by the repositories of one pool so their transactions nest.
type db struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type Option func(*db)

// WithLockTimeout sets lock_timeout for every transaction. A statement that
// waits longer for a row lock fails with ErrLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(x *db) {
		if d >= 0 {
			x.lockTimeout = d
		}
	}
}

func NewRepositories(pool *pgxpool.Pool, opts ...Option) app.Repositories {
	d := &db{pool: pool}
	for _, opt := range opts {
		opt(d)
	}
	return app.Repositories{
		Books:        &BookRepository{db: d},
		Reservations: &ReservationRepository{db: d},
		Loans:        &LoanRepository{db: d},
	}
}

func (d *db) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapErr("begin tx", err)
	}
	if d.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", d.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			_ = tx.Rollback(ctx)
			return wrapErr("set lock_timeout", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (d *db) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return d.pool
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// classify maps lock and serialization failures to the transient domain errors.
func classify(err error) error {
	switch pgCode(err) {
	case pgerrcode.LockNotAvailable:
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	case pgerrcode.DeadlockDetected, pgerrcode.SerializationFailure:
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}

func wrapErr(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if mapped := classify(err); mapped != err {
		return mapped
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgerrcode.UniqueViolation
}

func isCheckViolation(err error) bool {
	return pgCode(err) == pgerrcode.CheckViolation
}
