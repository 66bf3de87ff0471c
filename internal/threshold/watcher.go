package threshold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// defaultDebounce absorbs the burst of events editors emit on save.
const defaultDebounce = 250 * time.Millisecond

// File is the layout of the watched threshold file:
//
//	ultrasonic: "0.080"
//	magnetometer: "0.050"
//
// Omitted keys leave the current value unchanged.
type File struct {
	Ultrasonic   string `yaml:"ultrasonic"`
	Magnetometer string `yaml:"magnetometer"`
}

// Watcher applies a YAML threshold file to a Store whenever it changes.
// The parent directory is watched so atomic replace-on-save is seen.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
	logger   Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(store *Store, path string) *Watcher {
	return &Watcher{
		store:    store,
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(logger Logger) {
	w.logger = logger
}

// Apply reads the file once and sets every value it names. A missing file
// is not an error.
func (w *Watcher) Apply(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading threshold file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing threshold file: %w", err)
	}

	for kind, value := range map[Kind]string{Ultrasonic: f.Ultrasonic, Magnetometer: f.Magnetometer} {
		if value == "" {
			continue
		}
		if err := w.store.Set(ctx, kind, value); err != nil {
			return fmt.Errorf("applying %s: %w", kind, err)
		}
	}
	return nil
}

// Start applies the file once, then watches it until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	if err := w.Apply(ctx); err != nil {
		w.logger.Warn("threshold file not applied", "path", w.path, "error", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close() //nolint:errcheck // error path
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.watcher = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(runCtx, fsw, w.done)

	w.logger.Info("threshold file watcher started", "path", w.path)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, cancel, done := w.watcher, w.cancel, w.done
	w.watcher, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if fsw == nil {
		return
	}
	cancel()
	<-done
	fsw.Close() //nolint:errcheck // shutdown
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Apply(ctx); err != nil {
				w.logger.Warn("threshold file rejected", "path", w.path, "error", err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("threshold file watcher error", "error", err)
		}
	}
}
