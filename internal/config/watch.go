package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces editor write bursts into one reload.
const debounce = 250 * time.Millisecond

// Watch reloads the config whenever the file at path changes and calls
// fn with the fresh document. It watches the parent directory so atomic
// rename saves (including our own) are seen. Blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Config)) error {
	if path == "" {
		path = DefaultPath()
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "err", err)
		case <-fire:
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed", "path", path, "err", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			fn(cfg)
		}
	}
}
