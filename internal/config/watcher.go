package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is called with the freshly loaded config after the file on
// disk changes. Handlers must tolerate being called concurrently with
// requests; reportd only feeds hot-reloadable service knobs through them.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file on write and fans the result out to
// registered handlers. Editors replace files instead of writing in place, so
// create and rename events are treated like writes.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	logger   *zap.Logger
	stopCh   chan struct{}
	mu       sync.Mutex
}

// NewWatcher watches the config file path resolved by Path().
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		path:    Path(),
		watcher: fw,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnChange registers a handler. Register before Start.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching. A missing config file is not an error; the watch
// simply never fires until one appears at the path.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.path); err != nil {
		w.logger.Info("Config file not watchable, hot-reload disabled",
			zap.String("path", w.path),
			zap.Error(err))
		return nil
	}
	go w.loop()
	w.logger.Info("Watching config file", zap.String("path", w.path))
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}

func (w *Watcher) loop() {
	// Debounce bursts: editors fire several events per save.
	var timer *time.Timer
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous values", zap.Error(err))
		return
	}
	w.mu.Lock()
	handlers := append([]ChangeHandler(nil), w.handlers...)
	w.mu.Unlock()
	for _, h := range handlers {
		h(cfg)
	}
	w.logger.Info("Config reloaded", zap.String("path", w.path))
}
