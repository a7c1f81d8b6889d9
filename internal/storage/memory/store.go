// Package memory is a single-process transactional store. Rows live in maps
// guarded by one mutex; row locks are keyed mutexes held by a transaction
// from the locked read until commit or rollback, and an undo log restores
// rows written by a transaction that fails.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/domain"
)

const defaultLockTimeout = 5 * time.Second

type Store struct {
	mu           sync.Mutex
	books        map[int64]domain.Book
	reservations map[int64]domain.Reservation
	loans        map[int64]domain.Loan

	nextBookID        int64
	nextReservationID int64
	nextLoanID        int64

	locks       *lockTable
	lockTimeout time.Duration
	txSeq       atomic.Int64
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock.
// Zero waits until ctx is done.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.lockTimeout = d
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		books:        make(map[int64]domain.Book),
		reservations: make(map[int64]domain.Reservation),
		loans:        make(map[int64]domain.Loan),
		locks:        newLockTable(),
		lockTimeout:  defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repositories exposes the store through the app's repository ports.
func (s *Store) Repositories() app.Repositories {
	return app.Repositories{Books: s, Reservations: s, Loans: s}
}

type txKey struct{}

type txState struct {
	id   int64
	held []string
	undo []func()
}

func txFromContext(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)
	return tx
}

// WithTx runs fn in a transaction. A nested call joins the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx := &txState{id: s.txSeq.Add(1)}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	err := fn(txCtx)
	if err != nil {
		s.rollback(tx)
	}
	s.releaseAll(tx)
	return err
}

func (s *Store) rollback(tx *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (s *Store) releaseAll(tx *txState) {
	for i := len(tx.held) - 1; i >= 0; i-- {
		s.locks.release(tx.held[i])
	}
	tx.held = nil
}

// lock takes the row lock for key when ctx carries a transaction. Outside a
// transaction a locked read degrades to a plain read.
func (s *Store) lock(ctx context.Context, key string) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil
	}
	return s.locks.acquire(ctx, key, tx, s.lockTimeout)
}

// record registers an undo step. Callers hold s.mu.
func (s *Store) record(ctx context.Context, undo func()) {
	if tx := txFromContext(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func bookKey(id int64) string        { return fmt.Sprintf("book:%d", id) }
func reservationKey(id int64) string { return fmt.Sprintf("reservation:%d", id) }
func loanKey(id int64) string        { return fmt.Sprintf("loan:%d", id) }
func studentKey(id int64) string     { return fmt.Sprintf("student:%d", id) }

var (
	_ app.BookRepository        = (*Store)(nil)
	_ app.ReservationRepository = (*Store)(nil)
	_ app.LoanRepository        = (*Store)(nil)
)
