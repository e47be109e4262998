package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/franz/media-janitor/internal/config"
	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/util"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// loadConfig decodes the layered configuration and applies the log flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	util.SetVerbose(cfg.Verbose)
	util.SetQuiet(cfg.Quiet)
	return cfg, nil
}

// openStore opens the state database, tuning it for network mounts
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	opts := &store.OpenOptions{}
	if abs, err := filepath.Abs(cfg.DB); err == nil && util.IsNetworkPath(filepath.Dir(abs)) {
		util.WarnLog("Database is on a network filesystem; using conservative SQLite settings")
		opts.NetworkOptimized = true
	}

	util.DebugLog("Opening database: %s", cfg.DB)
	db, err := store.OpenWithOptions(cfg.DB, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", util.ErrStorageUnavailable, err)
	}

	if err := db.SeedPatterns(ctx, cfg.Exclude.Patterns); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed exclusion patterns: %w", err)
	}
	return db, nil
}

// newEventLogger opens this run's JSONL audit log, falling back to no log
func newEventLogger(cfg *config.Config) *report.EventLogger {
	level := report.LevelInfo
	if cfg.Quiet {
		level = report.LevelWarning
	} else if cfg.Verbose {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(cfg.Artifacts, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s", logger.Path())
	return logger
}

// newLifecycle builds the safe-delete lifecycle over db
func newLifecycle(cfg *config.Config, db *store.Store, logger *report.EventLogger) (*safedelete.Lifecycle, error) {
	return safedelete.New(db, db, db, safedelete.Options{
		TrashDir:  cfg.Trash.Dir,
		Retention: cfg.Trash.Retention,
		Retry:     cfg.RetryPolicy(),
		Logger:    logger,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitCode maps failures to distinct process exit codes
func exitCode(err error) int {
	switch {
	case errors.Is(err, util.ErrInvalidConfig):
		return 2
	case errors.Is(err, util.ErrStorageUnavailable):
		return 3
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
