package localdj

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirWatcher coalesces filesystem change events across a set of music
// directories into a single debounced refresh trigger channel. It is
// an enrichment on top of spec.md §4.A's periodic refresh, not a
// replacement: both feed the same refresh path, which is serialized
// by the caller's refresh mutex.
type DirWatcher struct {
	watcher  *fsnotify.Watcher
	Triggers chan struct{}
	debounce time.Duration
	log      *logrus.Entry

	stop chan struct{}
	done chan struct{}
}

// NewDirWatcher installs an fsnotify watch on each of dirs (recursive
// subdirectories are added opportunistically; a directory that
// disappears is simply dropped from future events). Returns nil, nil
// if no directories could be watched.
func NewDirWatcher(dirs []string, debounce time.Duration) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("component", "dir_watcher")
	watched := 0
	for _, dir := range dirs {
		abs := expandPath(dir)
		if err := addRecursive(w, abs); err != nil {
			log.WithError(err).WithField("dir", abs).Warn("failed to watch directory")
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = w.Close()
		return nil, nil
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	dw := &DirWatcher{
		watcher:  w,
		Triggers: make(chan struct{}, 1),
		debounce: debounce,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go dw.loop()
	return dw, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil // root itself was watchable; unreadable subtree is not fatal
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = addRecursive(w, filepath.Join(root, entry.Name()))
		}
	}
	return nil
}

// loop coalesces bursts of fsnotify events (a single file copy can
// emit many Write/Create events) into one trigger per debounce
// window, and drops the trigger on the floor if no one is listening
// (Triggers is buffered 1) rather than blocking the watcher.
func (dw *DirWatcher) loop() {
	defer close(dw.done)
	var timer *time.Timer

	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(dw.debounce)
			} else {
				timer.Reset(dw.debounce)
			}
		case <-timerC(timer):
			timer = nil
			select {
			case dw.Triggers <- struct{}{}:
			default:
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.WithError(err).Warn("filesystem watch error")
		case <-dw.stop:
			return
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Close stops the watcher and releases its underlying resources.
func (dw *DirWatcher) Close() error {
	close(dw.stop)
	<-dw.done
	return dw.watcher.Close()
}
