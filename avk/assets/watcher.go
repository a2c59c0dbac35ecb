package assets

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

var ErrWatcherClosed = errors.New("shader watcher already closed")

// ShaderEvent reports a SPIR-V file that was written, created or removed.
type ShaderEvent struct {
	Path    string
	Removed bool
}

// ShaderWatcher watches directory trees for changed .spv files. Directories
// created later are picked up as well.
type ShaderWatcher struct {
	fsnotify *fsnotify.Watcher

	events chan ShaderEvent
	errors chan error
	done   chan struct{}

	mutex     sync.Mutex
	isClosed  bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewShaderWatcher() (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	w := &ShaderWatcher{
		fsnotify: fsWatch,
		events:   make(chan ShaderEvent, 16),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

func (w *ShaderWatcher) Events() <-chan ShaderEvent {
	return w.events
}

func (w *ShaderWatcher) Errors() <-chan error {
	return w.errors
}

// AddRecursive starts watching dir and every directory below it.
func (w *ShaderWatcher) AddRecursive(dir string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isClosed {
		return ErrWatcherClosed
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsnotify.Add(path); err != nil {
			return errors.Wrapf(err, "watching %s", path)
		}
		core.LogDebug("Watching %s for shader changes", path)
		return nil
	})
}

func (w *ShaderWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mutex.Lock()
		w.isClosed = true
		w.mutex.Unlock()

		close(w.done)
		err = w.fsnotify.Close()
		w.wg.Wait()
		close(w.events)
		close(w.errors)
	})
	return err
}

func (w *ShaderWatcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			w.handle(e)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("Shader watcher: %s", err)
			w.sendError(err)

		case <-w.done:
			return
		}
	}
}

func (w *ShaderWatcher) handle(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := w.AddRecursive(e.Name); err != nil && !errors.Is(err, ErrWatcherClosed) {
				w.sendError(err)
			}
			return
		}
	}
	if !IsSPIRVFile(e.Name) {
		return
	}

	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.send(ShaderEvent{Path: e.Name})
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.send(ShaderEvent{Path: e.Name, Removed: true})
	}
}

func (w *ShaderWatcher) send(ev ShaderEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// sendError drops errors nobody collects instead of stalling the watch loop.
func (w *ShaderWatcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
