// Package watcher reports debounced changes in the game's saves directory.
//
// The watcher is armed only while this client is active. Writes that happen
// while disarmed (for example the mirror performed by a pull) are dropped.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
)

// Ignorer decides whether a slash-separated path relative to the watched
// directory is ignored.
type Ignorer interface {
	Match(rel string) bool
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period after the last write before a
	// SaveChanged is emitted.
	Debounce time.Duration
	// Ignore filters paths. Nil ignores nothing.
	Ignore Ignorer
}

// Watcher watches a directory tree and emits SaveChanged events.
type Watcher struct {
	dir    string
	opts   Options
	sink   event.Sink
	logger *logging.Logger

	fs *fsnotify.Watcher

	mu    sync.Mutex
	armed bool
	// epoch counts disarms; changes recorded in an earlier epoch are stale.
	epoch uint64
}

// New creates a Watcher for dir. It is disarmed until Arm is called.
func New(dir string, opts Options, sink event.Sink, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		dir:    dir,
		opts:   opts,
		sink:   sink,
		logger: logger.WithComponent("watcher"),
		fs:     fw,
	}, nil
}

// Arm starts watching the directory tree. The directory must exist.
func (w *Watcher) Arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.armed {
		return nil
	}
	if err := w.fs.Add(w.dir); err != nil {
		return err
	}
	w.addRecursive(w.dir)
	w.armed = true
	w.logger.Debug("armed", "dir", w.dir)
	return nil
}

// Disarm stops watching. Pending changes are discarded.
func (w *Watcher) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed {
		return
	}
	for _, p := range w.fs.WatchList() {
		_ = w.fs.Remove(p)
	}
	w.armed = false
	w.epoch++
	w.logger.Debug("disarmed", "dir", w.dir)
}

// Armed reports whether the watcher is armed.
func (w *Watcher) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Watcher) state() (armed bool, epoch uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed, w.epoch
}

// addRecursive adds every non-ignored subdirectory of root. Callers hold mu.
func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.dir && w.ignored(p) {
			return filepath.SkipDir
		}
		_ = w.fs.Add(p)
		return nil
	})
}

func (w *Watcher) relative(p string) (string, bool) {
	rel, err := filepath.Rel(w.dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) ignored(p string) bool {
	rel, ok := w.relative(p)
	if !ok {
		return true
	}
	return w.opts.Ignore != nil && w.opts.Ignore.Match(rel)
}

// Run processes filesystem events until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	debounce := time.NewTimer(w.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := make(map[string]struct{})
	var pendingEpoch uint64

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			armed, epoch := w.state()
			if !armed {
				continue
			}
			if epoch != pendingEpoch {
				clear(pending)
				pendingEpoch = epoch
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.mu.Lock()
					w.addRecursive(ev.Name)
					w.mu.Unlock()
				}
			}
			rel, _ := w.relative(ev.Name)
			pending[rel] = struct{}{}
			debounce.Reset(w.opts.Debounce)

		case <-debounce.C:
			if armed, epoch := w.state(); !armed || epoch != pendingEpoch {
				clear(pending)
				continue
			}
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)

			w.logger.Debug("saves changed", "count", len(paths))
			w.sink.Emit(event.NewSaveChangedEvent(paths))

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err.Error())
		}
	}
}
