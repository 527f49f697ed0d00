package taxonomy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a taxonomy file when it changes on disk and swaps the
// active Registry atomically. A reload that fails to parse keeps the
// previous registry in place.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	state    swapper

	// OnReload is called after a successful swap.
	OnReload func(reg *Registry)
	// OnError is called when a reload fails; the old registry stays active.
	OnError func(err error)
}

// NewWatcher loads the taxonomy file once and prepares a file watcher.
func NewWatcher(path string) (*Watcher, error) {
	reg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory containing the file (fsnotify works better this way)
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		watcher:  fsWatcher,
		debounce: 500 * time.Millisecond,
	}
	w.state.swap(reg)
	return w, nil
}

// Current returns the active Registry.
func (w *Watcher) Current() *Registry {
	return w.state.Current()
}

// Run starts the watch loop. Blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Editors fire bursts of write events; debounce them.
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	reg, err := LoadFile(w.path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	w.state.swap(reg)
	if w.OnReload != nil {
		w.OnReload(reg)
	}
}
