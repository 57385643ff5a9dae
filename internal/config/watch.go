package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rewatchDelay gives atomic-save editors time to put the new file in place
// after a rename or remove before the watch is re-added.
const rewatchDelay = 50 * time.Millisecond

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file is written or replaced. It runs until ctx is
// cancelled.
//
// A reload that fails to parse or validate is logged and skipped; onChange
// only ever sees valid configurations.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				// The inode is gone; the replacement shows up as a new file.
				time.Sleep(rewatchDelay)
				if err := watcher.Add(path); err != nil {
					slog.Warn("config: re-watch failed", "path", path, "err", err)
					continue
				}
			} else if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", path, "lines", len(cfg.Lines))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
