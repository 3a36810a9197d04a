// Package main runs the WAAAH orchestration server: the agent registry, the
// persistent task queue, the wait coordinator, the maintenance scheduler, and
// the HTTP/WebSocket surface, in one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opensourcewtf/waaah/internal/agent/registry"
	"github.com/opensourcewtf/waaah/internal/common/config"
	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/db"
	"github.com/opensourcewtf/waaah/internal/dispatch"
	"github.com/opensourcewtf/waaah/internal/events"
	"github.com/opensourcewtf/waaah/internal/promptguard"
	"github.com/opensourcewtf/waaah/internal/scheduler"
	"github.com/opensourcewtf/waaah/internal/server"
	"github.com/opensourcewtf/waaah/internal/store"
	"github.com/opensourcewtf/waaah/internal/sysprompt"
	"github.com/opensourcewtf/waaah/internal/task"
	"github.com/opensourcewtf/waaah/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting waaah server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Insecure:    cfg.Tracing.Insecure,
	}); err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	provided, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer func() { _ = closeBus() }()
	eventBus := provided.Bus

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()

	activity := events.NewRecorder(st, eventBus, log.Named("activity"))
	reg := registry.New(st, eventBus, activity, log.Named("registry"))
	if err := reg.SeedFromFile(ctx, cfg.Agents.SeedFile); err != nil {
		log.Fatal("failed to seed agents", zap.Error(err))
	}

	prompts := sysprompt.New(st, reg, activity, log.Named("sysprompt"))
	coord := dispatch.New(st, reg, prompts, log.Named("dispatch"))
	prompts.SetWaker(coord)

	guard := promptguard.New(st, log.Named("promptguard"))
	tasks := task.NewService(st, reg, coord, guard, eventBus, activity, log.Named("task"))
	tasks.SetAckTimeout(cfg.Scheduler.AckTimeoutDuration())

	sched := scheduler.New(tasks, coord, st, log.Named("scheduler"),
		scheduler.WithTickInterval(cfg.Scheduler.TickIntervalDuration()),
		scheduler.WithLogRetention(cfg.Scheduler.LogRetention()),
		scheduler.WithWaiterDropThreshold(cfg.Scheduler.WaiterDropThreshold()),
	)
	sched.Start(ctx)

	srv, err := server.New(cfg, log.Named("http"), reg, tasks, coord, prompts, st, eventBus)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", zap.Error(err))
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Error("tracing shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// openStore opens the configured database and wires the reader/writer pair.
// SQLite gets a dedicated read pool next to the single-writer connection;
// Postgres uses one pool for both roles.
func openStore(cfg *config.Config, log *logger.Logger) (store.Store, func() error, error) {
	switch cfg.Database.Driver {
	case "", "sqlite3":
		log.Info("opening sqlite database", zap.String("path", cfg.Database.Path))
		writerDB, err := db.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		readerDB, err := db.OpenSQLiteReader(cfg.Database.Path)
		if err != nil {
			_ = writerDB.Close()
			return nil, nil, err
		}
		writer := sqlx.NewDb(writerDB, "sqlite3")
		reader := sqlx.NewDb(readerDB, "sqlite3")
		st, cleanup, err := store.Provide(db.NewPool(writer, reader))
		if err != nil {
			return nil, nil, err
		}
		return st, cleanup, nil

	case "pgx":
		log.Info("connecting to postgres",
			zap.String("host", cfg.Database.Host),
			zap.String("dbname", cfg.Database.DBName),
		)
		pgDB, err := db.OpenPostgres(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, err
		}
		pool := sqlx.NewDb(pgDB, "pgx")
		st, cleanup, err := store.Provide(db.NewPool(pool, pool))
		if err != nil {
			return nil, nil, err
		}
		return st, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
