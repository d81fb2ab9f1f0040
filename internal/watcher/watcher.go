// Package watcher reloads the halyard configuration when the config file
// changes on disk, so user-table edits take effect without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/halyard/halyard/config"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches one config file and invokes a callback with the
// freshly parsed configuration on every change.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	debounce   time.Duration
	lastChange time.Time
	mu         sync.Mutex
	logger     *logrus.Entry
	onReload   func(*config.Config)
}

// New creates a ConfigWatcher for the given config file. The debounce
// duration controls how rapid successive writes are coalesced; zero picks
// a sane default. onReload receives every successfully parsed config.
//
// The parent directory is watched rather than the file itself, so editors
// that replace the file (rename-over-write) keep triggering events.
func New(configPath string, debounce time.Duration, logger *logrus.Entry, onReload func(*config.Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &ConfigWatcher{
		watcher:    watcher,
		configPath: configPath,
		debounce:   debounce,
		logger:     logger,
		onReload:   onReload,
	}, nil
}

// Start begins watching for config changes. It blocks until the context is
// cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if filepath.Clean(event.Name) == filepath.Clean(w.configPath) {
					w.handleChange()
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange reloads the config with debouncing. Parse failures keep the
// previous configuration in effect.
func (w *ConfigWatcher) handleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.logger.Debugf("Debounced: only %v since last change", elapsed)
		return
	}
	w.lastChange = time.Now()

	cfg, err := config.Load(w.configPath)
	if err != nil {
		w.logger.WithError(err).Warn("Config changed but failed to load, keeping previous")
		return
	}

	w.logger.WithField("path", filepath.Base(w.configPath)).Info("Config reloaded")

	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}
