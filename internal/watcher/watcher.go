// Package watcher turns filesystem notifications into debounced change
// batches that drive incremental re-indexing in watch mode.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	scouterr "github.com/Itsme23476/filescout/internal/errors"
	"github.com/Itsme23476/filescout/internal/pipeline"
)

// Operation classifies a filesystem event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one coalesced filesystem change.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	DebounceWindow  time.Duration // Coalescing window, default 500ms
	EventBufferSize int           // Batch channel buffer, default 64
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 64
	}
	return o
}

// Watcher watches one root recursively and emits debounced batches of
// file events. New directories are added to the watch as they appear.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error
	opts      Options

	mu      sync.Mutex
	stopped bool
}

// New creates a Watcher.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		errors:    make(chan error, 10),
		opts:      opts,
	}, nil
}

// Start watches root until ctx is cancelled or Stop is called. It
// blocks; run it in a goroutine and consume Batches.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeInvalidPath, err)
	}

	if err := w.addRecursive(absRoot); err != nil {
		return err
	}
	slog.Info("watch_started", slog.String("root", absRoot))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// Batches returns the channel of debounced event batches.
func (w *Watcher) Batches() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.Stop()
	return w.fsw.Close()
}

// addRecursive registers root and every non-skipped subdirectory.
func (w *Watcher) addRecursive(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && pipeline.SkipDir(d.Name()) {
			return fs.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return nil
}

// handle maps one fsnotify event into the debouncer. Directory creates
// extend the watch; files the indexer would skip are dropped here so a
// busy editor does not trigger re-index churn.
func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		// A new directory needs watching before its contents change.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !pipeline.SkipDir(name) {
				_ = w.addRecursive(event.Name)
			}
			return
		}
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	if pipeline.SkipFile(name) {
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}
