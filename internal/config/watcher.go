package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// reloadDebounce coalesces the event bursts editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// ReloadFunc receives the freshly parsed configuration after a change.
type ReloadFunc func(*Config)

// WatchConfig watches the configuration file at path and invokes onReload with
// the re-parsed configuration whenever the file is written, created or renamed.
// A file that fails to parse is logged and skipped, keeping the previous
// configuration active. WatchConfig blocks until ctx is done.
func WatchConfig(ctx context.Context, path string, onReload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch registered on the file itself.
	dir := filepath.Dir(path)
	if err = watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := func() {
		cfg, errLoad := LoadConfig(target)
		if errLoad != nil {
			log.WithFields(log.Fields{"path": target, "error": errLoad}).Warn("config reload skipped")
			return
		}
		log.WithField("path", target).Info("config reloaded")
		onReload(cfg)
	}

	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
		case errWatch, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithField("error", errWatch).Warn("config watcher error")
		case <-fire:
			timer = nil
			reload()
		}
	}
}
