package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the live configuration record behind an RWMutex and
// hot-swaps it on file edits. The state machine takes a read guard once
// per tick; nothing besides the watcher ever writes the record, matching
// the single-writer discipline the daemon's concurrency model requires.
type Watcher struct {
	mu      sync.RWMutex
	rec     Record
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher starts from rec as given (it does not read path itself) and
// watches path's parent directory for edits to path. A path of "" disables
// the file watch entirely.
func NewWatcher(path string, rec Record) (*Watcher, error) {
	w := &Watcher{rec: rec, path: path}
	if path == "" {
		return w, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: could not create fsnotify watcher", "err", err)
		return w, nil
	}
	w.watcher = watcher

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("config: could not watch config dir", "err", err)
	}

	go w.watchLoop()
	return w, nil
}

// Get returns a copy of the current record.
func (w *Watcher) Get() Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rec
}

// Close stops the file watcher, if any.
func (w *Watcher) Close() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) reload() {
	rec, err := LoadOrDefault(w.path)
	if err != nil {
		slog.Warn("config: failed to reload, keeping previous record", "err", err)
		return
	}
	if err := rec.Validate(); err != nil {
		slog.Warn("config: reloaded record failed validation, keeping previous record", "err", err)
		return
	}
	w.mu.Lock()
	w.rec = rec
	w.mu.Unlock()
	slog.Info("config: reloaded from disk", "path", w.path)
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name == w.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("config: watcher error", "err", err)
			}
		}
	}
}
