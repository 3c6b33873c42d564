package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// saveSettle is how long the file must stay quiet before it is reloaded. An
// editor's atomic save arrives as a burst of create, write and chmod events
// and is reloaded once.
const saveSettle = 150 * time.Millisecond

// WatchStation follows agent.station in the config file at path and calls
// apply whenever it names a station other than current(). An empty value is
// ignored, so removing the key leaves the running station alone. A file
// that fails to load is logged and skipped. It blocks until ctx is
// cancelled.
func WatchStation(ctx context.Context, path string, current func() string, apply func(string) error) error {
	return watch(ctx, path, saveSettle, func(cfg *Config) {
		next := cfg.Agent.Station
		if next == "" || next == current() {
			return
		}
		slog.Info("config: station changed", "path", path, "station", next)
		if err := apply(next); err != nil {
			slog.Warn("config: apply station failed", "station", next, "err", err)
		}
	})
}

// watch calls onReload with the freshly loaded file once per settled burst
// of writes to path.
func watch(ctx context.Context, path string, settle time.Duration, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	defer watcher.Close()

	// Watch the directory: an atomic save replaces the file's inode.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	slog.Info("config: watching for station changes", "path", path)

	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			settled = time.After(settle)

		case <-settled:
			settled = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping current station", "path", path, "err", err)
				continue
			}
			onReload(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
