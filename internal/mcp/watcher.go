package mcp

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/triagebot/internal/config"
)

const reloadDebounce = 500 * time.Millisecond

// WatchConfig reloads the MCP server catalog when the mcp.json file
// changes. Editors write in bursts, so events are debounced. Blocks until
// ctx is done.
func (m *Manager) WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file atomically,
	// which drops a watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("mcp.watch.error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			cfgs, err := config.LoadMCPFile(path)
			if err != nil {
				slog.Warn("mcp.watch.reload_failed", "path", path, "error", err)
				continue
			}
			if err := m.Refresh(ctx, cfgs); err != nil {
				slog.Warn("mcp.watch.refresh_partial", "error", err)
			}
		}
	}
}
