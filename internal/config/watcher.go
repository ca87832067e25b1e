package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// PolicyWatcher hot-reloads the promotion policy when the config file
// changes. Readers call Policy() and always see a complete snapshot;
// reloads swap the pointer atomically.
type PolicyWatcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	debounce   time.Duration

	current atomic.Pointer[Policy]
	stop    chan struct{}
}

// NewPolicyWatcher creates a watcher for the given config path and loads
// the initial policy. The initial load never fails (built-in defaults
// apply when the source is unusable), but setting up the filesystem
// watcher can.
func NewPolicyWatcher(configPath string, logger *zap.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configPath == "" {
		var err error
		configPath, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &PolicyWatcher{
		configPath: configPath,
		watcher:    fw,
		logger:     logger,
		debounce:   200 * time.Millisecond,
		stop:       make(chan struct{}),
	}
	w.current.Store(LoadPolicy(configPath, logger))

	return w, nil
}

// Policy returns the current policy snapshot.
func (w *PolicyWatcher) Policy() *Policy {
	return w.current.Load()
}

// Start begins watching the config file's directory for changes.
// Watching the directory rather than the file survives editors that
// replace the file via rename.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching config directory %s: %w", dir, err)
	}

	go w.processEvents(ctx)

	w.logger.Info("policy watcher started", zap.String("path", w.configPath))
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *PolicyWatcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *PolicyWatcher) processEvents(ctx context.Context) {
	var timer *time.Timer

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts of events from a single save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}

func (w *PolicyWatcher) reload() {
	policy := LoadPolicy(w.configPath, w.logger)
	w.current.Store(policy)
	w.logger.Info("policy reloaded",
		zap.Float64("shadow_win_min", policy.Promotion.ShadowWinMin),
		zap.Int("min_shadow_trials", policy.Promotion.MinShadowTrials),
		zap.Int("max_tools_promote_per_day", policy.Promotion.MaxToolsPromotePerDay),
	)
}
