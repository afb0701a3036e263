package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kestreldev/kestrel/internal/core/logging"
)

// debounce window for editors that write via rename+create.
const watchDebounce = 250 * time.Millisecond

// Watch watches the config file and invokes onChange with the freshly
// loaded config whenever it is rewritten. Invalid configs are logged
// and skipped, keeping the last good one active.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: most editors replace the file, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	log := logging.Component("config")

	go func() {
		defer watcher.Close() //nolint:errcheck

		var timer *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				log.Warn().Err(err).Msg("config reload failed, keeping previous")
				return
			}
			if err := cfg.Validate(); err != nil {
				log.Warn().Err(err).Msg("config invalid after reload, keeping previous")
				return
			}
			log.Info().Str("path", path).Msg("config reloaded")
			onChange(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
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
				timer = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return nil
}
