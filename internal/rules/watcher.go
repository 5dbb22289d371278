package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/askdb/askdb/internal/observability"
)

// Provider hands out the current rule set. Each pipeline run takes one
// snapshot and uses it unchanged for the whole run; reloads only affect
// later runs.
type Provider interface {
	Current() *Rules
}

// Static is a Provider that never changes. Used in tests and when no rules
// file is configured.
type Static struct {
	rules *Rules
}

// NewStatic creates a static provider around a fixed rule set
func NewStatic(r *Rules) *Static {
	if r == nil {
		r = Defaults()
	}
	return &Static{rules: r}
}

// Current returns the fixed rule set
func (s *Static) Current() *Rules {
	return s.rules
}

// Watcher is a Provider that hot-reloads the rules file on change. The
// current rule set is swapped atomically; a reload failure keeps the
// previous set in place.
type Watcher struct {
	path   string
	logger *observability.Logger

	mu      sync.RWMutex
	current *Rules

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher loads the rules file and prepares a filesystem watcher on its
// directory. Call Start to begin watching and Close to stop.
func NewWatcher(path string) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go stale.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch rules directory: %w", err)
	}

	return &Watcher{
		path:    path,
		logger:  observability.NewLogger("rules-watcher"),
		current: initial,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded rule set
func (w *Watcher) Current() *Rules {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins processing filesystem events in a background goroutine
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "Rules watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	reloaded, err := Load(w.path)
	if err != nil {
		w.logger.Warn(ctx, "Failed to reload business rules, keeping previous set", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
		return
	}

	w.mu.Lock()
	w.current = reloaded
	w.mu.Unlock()

	w.logger.Info(ctx, "Business rules reloaded", map[string]interface{}{
		"path": w.path,
	})
}

// Reload forces a reload of the rules file outside of a filesystem event
func (w *Watcher) Reload(ctx context.Context) error {
	reloaded, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = reloaded
	w.mu.Unlock()
	return nil
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
