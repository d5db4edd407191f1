// Package storeopen builds the configured Record Store driver for the
// callfacts commands.
package storeopen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/jsonfile"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/postgres"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/sqlite"
)

// Open creates the driver named by cfg.Driver. Opening a durable store that
// fails validation returns its storage.CorruptStoreError unchanged, so callers
// can refuse to start.
func Open(ctx context.Context, cfg config.StorageConfig, configDir string, logger *slog.Logger) (storage.Driver, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, records are lost on exit")
		return inmemory.NewDriver(), nil

	case config.DriverJSONFile:
		path, err := ResolvePath(cfg.JSONPath, configDir, JSONFile)
		if err != nil {
			return nil, fmt.Errorf("resolving JSON store path: %w", err)
		}
		driver, err := jsonfile.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("opening JSON store: %w", err)
		}
		logger.Info("using JSON file storage", "path", path)
		return driver, nil

	case config.DriverSQLite, "":
		path, err := ResolvePath(cfg.SQLitePath, configDir, SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("resolving SQLite path: %w", err)
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite store: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL store: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q (available: memory, jsonfile, sqlite, postgres)", cfg.Driver)
}
