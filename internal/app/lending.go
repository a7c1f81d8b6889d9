package app

import (
	"log/slog"

	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/retry"
)

// Lending wires the inventory, loan and reservation services over one store.
type Lending struct {
	Inventory    *InventoryService
	Loans        *LoanService
	Reservations *ReservationService
	Sweeper      *OverdueSweeper
}

type lendingConfig struct {
	logger      *slog.Logger
	retryOpts   []retry.Option
	loanOpts    []LoanServiceOption
	sweeperOpts []SweeperOption
}

type LendingOption func(*lendingConfig)

func WithLogger(l *slog.Logger) LendingOption {
	return func(c *lendingConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRetry(opts ...retry.Option) LendingOption {
	return func(c *lendingConfig) { c.retryOpts = append(c.retryOpts, opts...) }
}

func WithLoanOptions(opts ...LoanServiceOption) LendingOption {
	return func(c *lendingConfig) { c.loanOpts = append(c.loanOpts, opts...) }
}

func WithSweeperOptions(opts ...SweeperOption) LendingOption {
	return func(c *lendingConfig) { c.sweeperOpts = append(c.sweeperOpts, opts...) }
}

func NewLending(repos Repositories, dir StudentDirectory, clk clock.Clock, opts ...LendingOption) *Lending {
	cfg := lendingConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	inventory := NewInventoryService(repos.Books, clk, cfg.logger.With(slog.String("component", "inventory")))

	loanOpts := append([]LoanServiceOption{
		WithLoanLogger(cfg.logger.With(slog.String("component", "loans"))),
		WithLoanRetry(cfg.retryOpts...),
	}, cfg.loanOpts...)
	loans := NewLoanService(repos.Loans, inventory, dir, clk, loanOpts...)

	reservations := NewReservationService(repos.Reservations, inventory, loans, dir, clk,
		WithReservationLogger(cfg.logger.With(slog.String("component", "reservations"))),
		WithReservationRetry(cfg.retryOpts...),
	)
	loans.reservations = reservations

	sweeperOpts := append([]SweeperOption{
		WithSweeperLogger(cfg.logger.With(slog.String("component", "overdue_sweeper"))),
	}, cfg.sweeperOpts...)

	return &Lending{
		Inventory:    inventory,
		Loans:        loans,
		Reservations: reservations,
		Sweeper:      NewOverdueSweeper(loans, clk, sweeperOpts...),
	}
}

var (
	_ CopyManager        = (*InventoryService)(nil)
	_ BookReader         = (*InventoryService)(nil)
	_ LoanIssuer         = (*LoanService)(nil)
	_ OverdueMarker      = (*LoanService)(nil)
	_ ReservationRetirer = (*ReservationService)(nil)
)
