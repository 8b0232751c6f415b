package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors produce on save
const reloadDelay = 150 * time.Millisecond

// Watcher reloads the config file whenever it changes on disk.
// The parent directory is watched so atomic rename-on-save is seen.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan *Config
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Watch starts a watcher for the config file at path
func Watch(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		path:    filepath.Clean(path),
		watcher: fw,
		changes: make(chan *Config, 4),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.running = true
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Changes delivers each successfully reloaded config.
// Closed when the watcher stops.
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

// Errors delivers reload failures (bad YAML, failed validation).
// Closed when the watcher stops.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops watching. It blocks until the event loop exits.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.changes)
	close(w.errors)
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendErr(err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.sendErr(err)
		return
	}
	select {
	case w.changes <- cfg:
	case <-w.done:
	}
}

func (w *Watcher) sendErr(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	default:
	}
}
