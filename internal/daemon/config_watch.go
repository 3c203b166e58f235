package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long the watcher waits after the last change
// before reloading
const reloadDebounce = 500 * time.Millisecond

// watchConfig calls reload whenever the file at path changes. Bursts of
// events are collapsed into one reload after debounce. The watch runs until
// ctx is cancelled.
func watchConfig(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config file watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config file %s: %w", path, err)
	}

	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	schedule := func() {
		reloadMutex.Lock()
		defer reloadMutex.Unlock()
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
		reloadTimer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}
			logger.Info("Configuration file changed, reloading...", "file", path)
			if err := reload(); err != nil {
				logger.Debug("Config reload failed", "error", err)
				return
			}
			logger.Info("Configuration reloaded successfully")
		})
	}

	go func() {
		defer watcher.Close()
		defer func() {
			reloadMutex.Lock()
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadMutex.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				logger.Debug("Filesystem event on config file", "event", event.Op.String(), "file", event.Name)

				// Editors that save atomically replace the watched file, and the
				// new file may not exist yet. Reload once it is watched again.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go func() {
						if rewatch(ctx, watcher, path, logger) {
							schedule()
						}
					}()
					continue
				}

				if event.Op&fsnotify.Write == 0 {
					continue
				}
				schedule()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("Config file watcher error", "error", err)
			}
		}
	}()

	logger.Info("Watching configuration file for changes", "path", path)
	return nil
}

// rewatch re-adds path with exponential backoff (10ms, 20ms, 40ms, 80ms)
// and reports whether the watch is back in place
func rewatch(ctx context.Context, watcher *fsnotify.Watcher, path string, logger *slog.Logger) bool {
	const attempts = 5
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(10<<uint(attempt-1)) * time.Millisecond):
			}
		}

		watcher.Remove(path)
		err := watcher.Add(path)
		if err == nil {
			logger.Debug("Re-added config watch", "path", path, "attempt", attempt+1)
			return true
		}
		if attempt == attempts-1 {
			logger.Error("Failed to re-add config watch after multiple attempts", "error", err, "path", path)
		}
	}
	return false
}
