package agentdefs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the registry when definition files change. Rapid
// bursts of events collapse into one reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	debounce time.Duration
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher over the registry's definitions directory.
func NewWatcher(registry *Registry, logger zerolog.Logger) (*Watcher, error) {
	if registry.dir == "" {
		return nil, fmt.Errorf("registry has no definitions directory")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		registry: registry,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.registry.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.registry.dir, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("dir", w.registry.dir).Msg("Agent definitions watcher started")
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Agent definitions watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.registry.Load(); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reload agent definitions")
			return
		}
		w.logger.Info().Msg("Agent definitions reloaded")
	})
}

func isYAML(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
