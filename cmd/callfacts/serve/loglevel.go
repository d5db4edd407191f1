package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
)

const configFileName = "config.toml"

func levelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// watchLogLevel follows config.toml in dir and applies log.debug to lv each
// time the file is written. It returns nil when ctx is done.
func watchLogLevel(ctx context.Context, dir string, lv *slog.LevelVar, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and SaveConfig replace it.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching config dir: %w", err)
	}
	path := filepath.Clean(filepath.Join(dir, configFileName))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := reloadLogLevel(path, lv, logger); err != nil {
				logger.Warn("ignoring config change", "path", path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watcher error: %w", err)
		}
	}
}

func reloadLogLevel(path string, lv *slog.LevelVar, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return err
	}

	level := levelFor(cfg.Log.Debug)
	if lv.Level() != level {
		lv.Set(level)
		logger.Info("log level changed", "level", level.String())
	}
	return nil
}
