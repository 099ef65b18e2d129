// Package main provides the entry point for the session service daemon.
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

	_ "github.com/lib/pq"

	"github.com/fntelecomllc/studio-sessions/pkg/audit"
	auditpg "github.com/fntelecomllc/studio-sessions/pkg/audit/postgres"
	"github.com/fntelecomllc/studio-sessions/pkg/authz"
	"github.com/fntelecomllc/studio-sessions/pkg/config"
	"github.com/fntelecomllc/studio-sessions/pkg/database/migrate"
	"github.com/fntelecomllc/studio-sessions/pkg/session"
	sessionpg "github.com/fntelecomllc/studio-sessions/pkg/session/postgres"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type daemonOptions struct {
	configPath  string
	showVersion bool
}

func parseFlags() daemonOptions {
	opts := daemonOptions{}
	flag.StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func setupLogger(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

func newRecorder(db *sql.DB, cfg config.AuditConfig) (audit.Recorder, func()) {
	if cfg.Sink != "postgres" {
		return audit.NewLogRecorder(nil), func() {}
	}

	store := auditpg.New(db, auditpg.Config{RetentionDays: cfg.RetentionDays})
	store.StartCleanupRoutine(cfg.CleanupInterval)
	return store, func() { _ = store.Close() }
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("sessiond version %s\n", Version)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogger(cfg.Logging)
	slog.Info("starting session service",
		"name", cfg.Server.Name,
		"environment", cfg.Server.Environment,
		"version", Version)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if cfg.Database.MigrateOnStart {
		if err := migrate.Run(db); err != nil {
			return err
		}
	}

	recorder, closeRecorder := newRecorder(db, cfg.Audit)
	defer closeRecorder()

	svc := session.NewService(
		sessionpg.New(db),
		authz.NewPostgresResolver(db),
		recorder,
		cfg.SessionPolicy(),
	)
	svc.Start()
	defer svc.Stop()

	ctx := setupSignalHandler()
	<-ctx.Done()

	slog.Info("shutting down session service")
	return nil
}
