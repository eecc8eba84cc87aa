package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"backend-runshare/internal/config"
	"backend-runshare/internal/db"
	"backend-runshare/internal/monitoring"
	"backend-runshare/internal/results"
	"backend-runshare/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	sentryEnabled, err := monitoring.Init(monitoring.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		logger.Warn("continuing without error tracking", "error", err)
	}
	if sentryEnabled {
		defer monitoring.Flush(2 * time.Second)
	}

	// Without postgres the outbox falls back to OUTBOX_SQLITE_PATH when set.
	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Warn("postgres connection failed", "error", err, "sqlite_outbox", cfg.OutboxSQLitePath != "")
		pg = nil
	} else if pg != nil {
		if err := results.NewOutbox(pg).EnsureSchema(context.Background()); err != nil {
			logger.Error("failed to prepare result outbox", "error", err)
		}
	}

	rdb := deps.connectRedis(cfg)
	if rdb != nil {
		if err := db.PingRedis(rdb); err != nil {
			logger.Warn("redis unavailable, running single instance", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
			rdb = nil
		}
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		logger.Error("server exited with error", "error", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, pg, rdb)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return err
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		slog.Warn("server close", "error", err)
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
