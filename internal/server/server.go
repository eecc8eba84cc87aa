package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"backend-runshare/internal/auth"
	"backend-runshare/internal/config"
	"backend-runshare/internal/course"
	"backend-runshare/internal/db"
	"backend-runshare/internal/monitoring"
	"backend-runshare/internal/results"
	"backend-runshare/internal/stream"
	"backend-runshare/internal/track"
	"backend-runshare/internal/tracking"
	"backend-runshare/internal/upstream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	SQLite   *sql.DB
	Redis    *redis.Client
	Outbox   results.Store
	Stream   *stream.Hub
	Tracking *tracking.Service
	Results  *results.Service
	Courses  *course.Service
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(recover.New())
	app.Use(logger.New())

	api := upstream.New(cfg.APIBaseURL, cfg.APITimeout)
	pace := track.PaceModel{PaceMinPerKm: cfg.PaceMinPerKm, CaloriesPerKm: cfg.CaloriesPerKm}
	if pace.PaceMinPerKm <= 0 || pace.CaloriesPerKm <= 0 {
		pace = track.DefaultPaceModel()
	}

	outbox, sqliteDB := newOutbox(cfg, pg)

	var drafts course.DraftStore
	if redisClient != nil {
		drafts = course.NewRedisDraftStore(redisClient)
	}

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      pg,
		SQLite:  sqliteDB,
		Redis:   redisClient,
		Outbox:  outbox,
		Stream:  stream.NewHub(redisClient),
		Results: results.NewService(results.NewClient(api), outbox),
		Courses: course.NewService(course.NewClient(api), drafts, pace, cfg.MarkerStride),
	}
	s.Tracking = tracking.NewService(tracking.Config{
		CountdownSeconds: cfg.CountdownSeconds,
		BudgetSeconds:    cfg.DurationSeconds,
		Pace:             pace,
		MarkerStride:     cfg.MarkerStride,
	}, s.Stream, s.Results)

	registerRoutes(s)
	return s
}

// newOutbox prefers postgres and falls back to a local sqlite file. A nil
// Store disables parking of failed submissions.
func newOutbox(cfg config.Config, pg *pgxpool.Pool) (results.Store, *sql.DB) {
	if pg != nil {
		return results.NewOutbox(pg), nil
	}
	if cfg.OutboxSQLitePath == "" {
		return nil, nil
	}
	sdb, err := db.OpenSQLite(cfg.OutboxSQLitePath)
	if err != nil {
		slog.Warn("sqlite outbox unavailable", "path", cfg.OutboxSQLitePath, "error", err)
		return nil, nil
	}
	o := results.NewSQLiteOutbox(sdb)
	if err := o.EnsureSchema(context.Background()); err != nil {
		slog.Warn("failed to prepare sqlite outbox", "path", cfg.OutboxSQLitePath, "error", err)
		_ = sdb.Close()
		return nil, nil
	}
	slog.Info("result outbox on sqlite", "path", cfg.OutboxSQLitePath)
	return o, sdb
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "outbox": s.Outbox != nil, "redis": false}
		if s.Redis != nil {
			status["redis"] = db.PingRedis(s.Redis) == nil
		}
		return c.JSON(status)
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	course.RegisterRoutes(s.App.Group("/courses"), s.Courses, jwtMiddleware)
	results.RegisterRoutes(s.App.Group("/results"), s.Results, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
}

// Close cancels live sessions and releases what NewServer opened. The
// postgres pool and redis client belong to the caller.
func (s *Server) Close() error {
	s.Tracking.Shutdown()
	err := s.Stream.Close()
	if s.SQLite != nil {
		err = errors.Join(err, s.SQLite.Close())
	}
	return err
}

// ErrorHandler renders errors as {"error": message} and reports anything
// that is not a client error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", code,
			"error", err)
		monitoring.CaptureException(err, map[string]string{
			"method": c.Method(),
			"route":  c.Route().Path,
		})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
