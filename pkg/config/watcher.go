package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before a change is reported.
const DefaultDebounce = 500 * time.Millisecond

// WatchConfig watches the given files and emits the absolute path of a file
// once its writes have settled for the debounce duration. The channel is
// closed when ctx is canceled or the watcher fails.
func WatchConfig(ctx context.Context, debounce time.Duration, files ...string) <-chan string {
	reloadCh := make(chan string, len(files)+1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(reloadCh)
		return reloadCh
	}

	watched := make(map[string]bool, len(files))
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve absolute path for watch file", "file", file)
			continue
		}
		// Watch the directory so editors that replace the file still trigger.
		if err := watcher.Add(filepath.Dir(absPath)); err != nil {
			slog.Warn("Could not watch file", "file", file, "error", err)
			continue
		}
		watched[absPath] = true
		slog.Debug("Watching configuration file", "file", absPath)
	}

	go func() {
		defer watcher.Close()
		defer close(reloadCh)

		fired := make(chan string, len(watched)+1)
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || !watched[name] {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if t, ok := timers[name]; ok {
					t.Stop()
				}
				timers[name] = time.AfterFunc(debounce, func() {
					select {
					case fired <- name:
					default:
					}
				})
			case name := <-fired:
				slog.Info("Configuration change detected", "file", name)
				select {
				case reloadCh <- name:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh
}
