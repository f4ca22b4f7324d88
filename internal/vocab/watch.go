package vocab

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileExt marks vocabulary files in a watched directory. The file name
// without the extension is the vocabulary name.
const FileExt = ".txt"

// Saver receives vocabularies imported from disk.
type Saver interface {
	Save(ctx context.Context, name string, types []string) error
}

// Watcher imports every *.txt file in a directory into a Saver and
// re-imports a file whenever it changes. Events for one file are debounced
// so an editor's burst of writes imports once, after the last write.
type Watcher struct {
	dir      string
	saver    Saver
	debounce time.Duration
	fw       *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	gens    map[string]uint64
	closed  bool
	running sync.WaitGroup
	// importMu serialises imports so an older file version never lands last.
	importMu sync.Mutex
}

// NewWatcher creates a Watcher over dir.
func NewWatcher(dir string, saver Saver, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		saver:    saver,
		debounce: debounce,
		fw:       fw,
		timers:   make(map[string]*time.Timer),
		gens:     make(map[string]uint64),
		logger:   slog.Default().With("component", "vocab-watcher", "dir", dir),
	}, nil
}

// Sync imports every vocabulary file currently in the directory.
func (w *Watcher) Sync(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != FileExt {
			continue
		}
		if err := w.importFile(ctx, filepath.Join(w.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Run imports changed files until ctx is cancelled, then closes the
// underlying watcher. It returns after any import already started has
// finished.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	defer w.stopTimers()
	w.logger.Info("watching vocabulary directory")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != FileExt {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// schedule (re)arms the import timer for path. Each arming bumps the
// path's generation; a callback that fired for an older generation does
// nothing, so a burst of events imports once.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.gens[path]++
	gen := w.gens[path]
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.closed || w.gens[path] != gen {
			w.mu.Unlock()
			return
		}
		delete(w.timers, path)
		w.running.Add(1)
		w.mu.Unlock()
		defer w.running.Done()

		w.importMu.Lock()
		defer w.importMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := w.importFile(ctx, path); err != nil {
			w.logger.Error("vocabulary import failed", "path", path, "error", err)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.running.Wait()
}

func (w *Watcher) importFile(ctx context.Context, path string) error {
	types, err := ReadFile(path)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), FileExt)
	if err := w.saver.Save(ctx, name, types); err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}
	w.logger.Info("vocabulary imported", "vocabulary", name, "types", len(types))
	return nil
}
