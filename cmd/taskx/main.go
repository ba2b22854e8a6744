package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/mohans/taskx"
	"github.com/mohans/taskx/backend"
	"github.com/mohans/taskx/backend/boltq"
	"github.com/mohans/taskx/backend/memq"
	"github.com/mohans/taskx/backend/redisq"
	"github.com/mohans/taskx/internal/config"
	"github.com/mohans/taskx/internal/server"
	"github.com/mohans/taskx/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		slog.Default().With("err", err).Error("taskx exited")
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	adapter, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer adapter.Close()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	mp, shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.Config{
		ServiceName: "taskx",
		Exporter:    cfg.Metrics.Exporter,
		Endpoint:    cfg.Metrics.Endpoint,
		Interval:    cfg.Metrics.Interval,
	})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			logger.With("err", err).Warn("failed to flush metrics")
		}
	}()

	metrics, err := taskx.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	registry := taskx.NewRegistry()
	registerBuiltins(registry, logger)

	srv := server.NewServer(&server.Options{
		Addr:    cfg.HTTP.Addr,
		Logger:  logger,
		Store:   store,
		Metrics: metrics,
	}, adapter)
	if err := srv.Run(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Workers {
		q := taskx.New(adapter, registry, &taskx.Options{
			Queue:       cfg.Queue,
			WaitTimeout: cfg.WaitTimeout,
			Logger:      logger.With("worker", i),
			Store:       store,
			Metrics:     metrics,
		})
		g.Go(func() error {
			return q.Run(gctx)
		})
	}

	logger.
		With("backend", cfg.Backend).
		With("queue", cfg.Queue).
		With("workers", cfg.Workers).
		Info("taskx is running")

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := srv.Close(shutdownCtx); cerr != nil {
		logger.With("err", cerr).Warn("failed to close server")
	}
	return err
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Adapter, error) {
	switch cfg.Backend {
	case "redis":
		return redisq.New(ctx, &redisq.Options{
			Logger:   logger,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case "bolt":
		return boltq.New(&boltq.Options{
			Logger: logger,
			Path:   cfg.Bolt.Path,
		})
	case "memory":
		return memq.New(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openStore returns a nil Store when no DSN is configured.
func openStore(ctx context.Context, cfg *config.Config) (taskx.Store, func(), error) {
	if cfg.Store.DSN == "" {
		return nil, func() {}, nil
	}

	db, err := sql.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeDB := func() { _ = db.Close() }

	store := taskx.NewSQLStore(db)
	if err := store.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	return store, closeDB, nil
}
