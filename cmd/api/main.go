package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/library-lending/internal/app"
	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/config"
	"github.com/cimillas/library-lending/internal/directory"
	"github.com/cimillas/library-lending/internal/storage/memory"
	"github.com/cimillas/library-lending/internal/storage/postgres"
	transporthttp "github.com/cimillas/library-lending/internal/transport/http"
	"github.com/cimillas/library-lending/migrations"
)

const (
	startupTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))
	config.LoadEnvFile(boot)

	cfg, err := config.Load(boot)
	if err != nil {
		boot.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("api stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	dir := directory.NewClient(cfg.DirectoryURL,
		directory.WithServiceToken(cfg.DirectoryToken),
		directory.WithTimeout(cfg.DirectoryTimeout),
		directory.WithLogger(logger.With(slog.String("component", "directory"))),
	)

	sweeperOpts := []app.SweeperOption{app.WithDailyAt(cfg.SweepHour, cfg.SweepMinute)}
	if cfg.SweepInterval > 0 {
		sweeperOpts = append(sweeperOpts, app.WithInterval(cfg.SweepInterval))
	}
	lending := app.NewLending(repos, dir, clock.NewSystem(),
		app.WithLogger(logger),
		app.WithSweeperOptions(sweeperOpts...),
	)

	e := transporthttp.NewServer(transporthttp.ServicesFrom(lending), transporthttp.Config{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.With(slog.String("component", "http")),
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", slog.String("addr", server.Addr), slog.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return lending.Sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (app.Repositories, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore(memory.WithLockTimeout(cfg.LockTimeout))
		return store.Repositories(), func() {}, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return app.Repositories{}, nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return app.Repositories{}, nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		pool.Close()
		return app.Repositories{}, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.NewRepositories(pool, postgres.WithLockTimeout(cfg.LockTimeout)), pool.Close, nil
}
