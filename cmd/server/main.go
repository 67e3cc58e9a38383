// Package main is the entry point for the contacts API server.
//
// The main package stays small. Its job is to:
//  1. Read configuration (defaults, .env, environment, flags)
//  2. Create the process-wide dependencies (logger, Sentry)
//  3. Start the server
//
// Everything else lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sakif/contacts-api/internal/config"
	"github.com/sakif/contacts-api/internal/repository/sqlstore"
	"github.com/sakif/contacts-api/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// Loaded before the logger exists, so a bad config goes to a default one.
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// === 3. ERROR REPORTING ===
	// Sentry is optional. Without a DSN the SDK is never initialized and the
	// sentryhttp middleware is a pass-through.
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
		}); err != nil {
			logger.Error("failed to initialize sentry", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// === 4. DATABASE DIRECTORY ===
	// SQLite creates the file but not its parent directory.
	if cfg.DBDriver == sqlstore.DriverSQLite {
		dbDir := filepath.Dir(cfg.DBDSN)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM. Returning (rather than os.Exit) on
	// the happy path lets the deferred Sentry flush run.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}
