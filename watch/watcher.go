package watch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/njyeung/lipsync/logger"
)

// Op is what happened to a watched source file
type Op int

const (
	Removed Op = iota
	Modified
)

func (o Op) String() string {
	if o == Removed {
		return "removed"
	}
	return "modified"
}

// Event reports a change to a watched file, by the path it was added with
type Event struct {
	Path string
	Op   Op
}

// Watcher follows individual files. Editors and encoders often replace a
// file by renaming over it, so the parent directory is what gets watched.
type Watcher struct {
	fs *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]string // absolute path -> path as added
	dirs  map[string]int    // watched dir -> number of files in it

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// New starts a watcher. Events are delivered on Events until Close.
func New() (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:     fs,
		files:  make(map[string]string),
		dirs:   make(map[string]int),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Events delivers changes to watched files
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Add starts watching path
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; ok {
		return nil
	}
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = path
	return nil
}

// Remove stops watching path
func (w *Watcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[abs]; !ok {
		return
	}
	delete(w.files, abs)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		w.fs.Remove(dir)
	}
}

// Close stops the watcher and closes Events
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	close(w.events)
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			path, watched := w.files[filepath.Clean(event.Name)]
			w.mu.Unlock()
			if !watched {
				continue
			}

			var ev Event
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				ev = Event{Path: path, Op: Removed}
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				ev = Event{Path: path, Op: Modified}
			default:
				continue
			}
			logger.Debug("source changed", logger.String("path", path), logger.String("op", ev.Op.String()))

			select {
			case w.events <- ev:
			case <-w.done:
				return
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", logger.ErrorField(err))
		}
	}
}
