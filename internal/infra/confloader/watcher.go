package confloader

import (
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher follows a set of files and calls its handlers once a burst of
// changes has settled. Each handler receives every path that changed
// during the burst, sorted.
//
// Parent directories are watched rather than the files, so saves that
// rename a temporary file over the original are seen. Events for other
// files in those directories are dropped.
type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	files    map[string]bool
	handlers []func(changed []string)
	pending  map[string]bool
	timer    *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets how long the watcher waits for events to settle.
// Zero delivers every event immediately.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher returns a watcher with nothing to watch yet.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		files:    make(map[string]bool),
		pending:  make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds paths to the watched set.
func (w *Watcher) Watch(paths ...string) error {
	for _, path := range paths {
		path = filepath.Clean(path)
		if err := w.fw.Add(filepath.Dir(path)); err != nil {
			w.logger.Error("failed to watch directory",
				"path", filepath.Dir(path),
				"error", err,
			)
			return err
		}

		w.mu.Lock()
		w.files[path] = true
		w.mu.Unlock()
		w.logger.Debug("watching file", "file", path)
	}
	return nil
}

// OnChange registers fn. Handlers may register further handlers.
func (w *Watcher) OnChange(fn func(changed []string)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Start delivers changes until Stop is called. It blocks.
func (w *Watcher) Start() {
	w.logger.Info("file watcher started")

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mark(filepath.Clean(event.Name), event.Op)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop ends watching and cancels pending deliveries. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		if err = w.fw.Close(); err != nil {
			w.logger.Error("failed to close file watcher", "error", err)
			return
		}
		w.logger.Info("file watcher stopped")
	})
	return err
}

func (w *Watcher) mark(path string, op fsnotify.Op) {
	w.mu.Lock()
	if !w.files[path] {
		w.mu.Unlock()
		return
	}
	w.logger.Debug("watched file changed", "file", path, "op", op.String())
	w.pending[path] = true

	if w.debounce <= 0 {
		w.mu.Unlock()
		w.flush()
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
	w.mu.Unlock()
}

// flush hands the pending paths to every handler.
func (w *Watcher) flush() {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	w.pending = make(map[string]bool)
	handlers := slices.Clone(w.handlers)
	w.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	sort.Strings(changed)
	for _, fn := range handlers {
		fn(changed)
	}
}
