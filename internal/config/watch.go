package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/valuin/radikari-chat-widget/internal/logging"
)

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 200 * time.Millisecond

// Watch re-resolves configuration whenever a recognized config file
// changes and hands the result to onChange. It blocks until ctx is done.
// Lifecycle-relevant fields still only gate future submissions; a reload
// never touches an in-flight turn.
func Watch(ctx context.Context, dir string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, d := range []string{GlobalConfigDir(), filepath.Join(dir, ".radikari")} {
		if _, err := os.Stat(d); err != nil {
			continue
		}
		if err := watcher.Add(d); err != nil {
			logging.Warn().Err(err).Str("dir", d).Msg("cannot watch config dir")
			continue
		}
		watched++
	}
	if watched == 0 {
		// Nothing to watch; behave like a plain blocking call.
		<-ctx.Done()
		return nil
	}

	recognized := make(map[string]bool)
	for _, name := range configNames() {
		recognized[name] = true
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !recognized[filepath.Base(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Msg("config watcher error")
		case <-timerC:
			timer = nil
			timerC = nil
			cfg, err := Load(dir)
			if err != nil {
				logging.Warn().Err(err).Msg("config reload failed")
				continue
			}
			logging.Info().Msg("configuration reloaded")
			onChange(cfg)
		}
	}
}
