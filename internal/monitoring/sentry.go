// Package monitoring reports unexpected server errors to Sentry.
package monitoring

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type Config struct {
	DSN         string
	Environment string
	Release     string
	// BeforeSend runs after sensitive headers are scrubbed. Returning nil
	// drops the event.
	BeforeSend func(*sentry.Event) *sentry.Event
}

// Init is a no-op without a DSN.
func Init(cfg Config, logger *slog.Logger) (bool, error) {
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured - error tracking disabled")
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			if cfg.BeforeSend != nil {
				return cfg.BeforeSend(event)
			}
			return event
		},
	})
	if err != nil {
		logger.Error("Failed to initialize Sentry", "error", err)
		return false, fmt.Errorf("sentry init: %w", err)
	}

	logger.Info("Sentry initialized", "environment", cfg.Environment)
	return true, nil
}

// CaptureException reports err with tags on a scope of its own.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
