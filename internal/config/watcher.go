package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

// Watcher watches the configuration file and fans reloaded configs out to
// registered callbacks. The daemon uses it to hot-apply strategy and
// auto-scaling policy changes without a restart.
type Watcher struct {
	loader    *Loader
	logger    types.Logger
	callbacks []func(*types.Config)
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	config    *types.Config
}

// NewWatcher creates a new configuration watcher
func NewWatcher(loader *Loader, logger types.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		loader:  loader,
		logger:  logger,
		watcher: fsWatcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start loads the initial configuration and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := w.loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		if err := w.watcher.Add(configFile); err != nil {
			return fmt.Errorf("failed to watch config file: %w", err)
		}
		w.logger.Info("watching configuration file", "file", configFile)
	}

	go w.watch(ctx)
	return nil
}

// Stop stops the configuration watcher
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

// OnChange registers a callback for configuration changes
func (w *Watcher) OnChange(callback func(*types.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *types.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func (w *Watcher) watch(ctx context.Context) {
	// Debounce so editors that write in bursts trigger one reload
	var debounceTimer *time.Timer
	const debounce = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug("configuration file changed", "file", event.Name, "op", event.Op.String())
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("configuration watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	newCfg, err := w.loader.LoadConfig()
	if err != nil {
		w.logger.Error("failed to reload configuration", "error", err)
		return
	}

	w.mu.Lock()
	w.config = newCfg
	callbacks := make([]func(*types.Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", "file", viper.ConfigFileUsed())

	for _, callback := range callbacks {
		go func(cb func(*types.Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("configuration change callback panicked", "error", r)
				}
			}()
			cb(newCfg)
		}(callback)
	}
}
