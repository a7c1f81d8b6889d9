package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/domain"
)

// OverdueMarker is the loan operation the sweeper drives.
type OverdueMarker interface {
	SweepOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error)
}

// OverdueSweeper runs the overdue sweep on a schedule. A trigger that fires
// while the previous sweep is still running is dropped.
type OverdueSweeper struct {
	loans  OverdueMarker
	clock  clock.Clock
	logger *slog.Logger

	hour, minute int
	interval     time.Duration

	running atomic.Bool
	wg      sync.WaitGroup
}

type SweeperOption func(*OverdueSweeper)

// WithDailyAt schedules the sweep once a day at hour:minute UTC.
func WithDailyAt(hour, minute int) SweeperOption {
	return func(s *OverdueSweeper) {
		if hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
			s.hour, s.minute = hour, minute
			s.interval = 0
		}
	}
}

// WithInterval replaces the daily schedule with a fixed period.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *OverdueSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *OverdueSweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewOverdueSweeper(loans OverdueMarker, clk clock.Clock, opts ...SweeperOption) *OverdueSweeper {
	s := &OverdueSweeper{
		loans:  loans,
		clock:  clk,
		logger: slog.Default(),
		hour:   9,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs one sweep and returns how many loans became overdue. It
// fails with ErrSweepInProgress instead of waiting when a sweep is running.
func (s *OverdueSweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, domain.ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	loans, err := s.loans.SweepOverdue(ctx, s.clock.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "overdue sweep failed", slog.Any("error", err))
		return 0, err
	}
	s.logger.InfoContext(ctx, "overdue sweep finished",
		slog.Int("marked", len(loans)), slog.Duration("took", time.Since(start)))
	return len(loans), nil
}

// Run fires sweeps until ctx is done, then waits for an in-flight sweep.
func (s *OverdueSweeper) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		timer := time.NewTimer(s.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.RunOnce(ctx); errors.Is(err, domain.ErrSweepInProgress) {
				s.logger.WarnContext(ctx, "overdue sweep skipped, previous run still in flight")
			}
		}()
	}
}

func (s *OverdueSweeper) nextDelay() time.Duration {
	if s.interval > 0 {
		return s.interval
	}
	now := s.clock.Now()
	return clock.NextDailyAt(now, s.hour, s.minute).Sub(now)
}
