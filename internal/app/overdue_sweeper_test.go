package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/domain"
)

type blockingMarker struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (m *blockingMarker) SweepOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	m.calls.Add(1)
	m.entered <- struct{}{}
	select {
	case <-m.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []domain.Loan{{ID: 1, Status: domain.LoanStatusOverdue}}, nil
}

type countingMarker struct {
	calls atomic.Int32
}

func (m *countingMarker) SweepOverdue(context.Context, time.Time) ([]domain.Loan, error) {
	m.calls.Add(1)
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOverdueSweeper_SkipsWhileRunning(t *testing.T) {
	t.Parallel()

	marker := &blockingMarker{entered: make(chan struct{}, 1), release: make(chan struct{})}
	sweeper := NewOverdueSweeper(marker, clock.NewFixed(time.Now()), WithSweeperLogger(discardLogger()))

	done := make(chan error, 1)
	go func() {
		n, err := sweeper.RunOnce(context.Background())
		if err == nil && n != 1 {
			err = errors.New("expected one loan marked")
		}
		done <- err
	}()
	<-marker.entered

	if _, err := sweeper.RunOnce(context.Background()); !errors.Is(err, domain.ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}

	close(marker.release)
	if err := <-done; err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// The guard is released once the run finishes.
	marker.release = make(chan struct{})
	close(marker.release)
	if _, err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected sweep after release, got %v", err)
	}
	<-marker.entered
	if got := marker.calls.Load(); got != 2 {
		t.Fatalf("expected 2 sweeps, got %d", got)
	}
}

func TestOverdueSweeper_RunOnInterval(t *testing.T) {
	t.Parallel()

	marker := &countingMarker{}
	sweeper := NewOverdueSweeper(marker, clock.NewSystem(),
		WithInterval(5*time.Millisecond), WithSweeperLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- sweeper.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for marker.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", marker.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-stopped; err != nil {
		t.Fatalf("run returned %v", err)
	}
}

func TestOverdueSweeper_DailySchedule(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s := NewOverdueSweeper(&countingMarker{}, clock.NewFixed(now))
	if got := s.nextDelay(); got != time.Hour {
		t.Fatalf("expected default 09:00 trigger in 1h, got %s", got)
	}

	s = NewOverdueSweeper(&countingMarker{}, clock.NewFixed(now), WithDailyAt(7, 30))
	if got := s.nextDelay(); got != 23*time.Hour+30*time.Minute {
		t.Fatalf("expected next day trigger, got %s", got)
	}
}
