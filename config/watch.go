package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch hot-reloads the YAML document at path, calling onChange with
// the freshly parsed StoreConfig on every debounced write. Grounded on
// cmd/bd/list.go's watchIssues: an fsnotify watcher on the containing
// directory, a single in-flight debounce timer reset on every Write
// event, and best-effort cleanup. Returns a stop function; onChange is
// never called after stop returns.
func Watch(path string, debounce time.Duration, onChange func(StoreConfig, error)) (stop func(), err error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := dirOf(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	var mu sync.Mutex
	stopped := false
	notify := func(cfg StoreConfig, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			onChange(cfg, err)
		}
	}
	go func() {
		var timer *time.Timer
		for {
			select {
			case <-done:
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) || baseOf(ev.Name) != baseOf(path) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					cfg, loadErr := LoadFile(path)
					notify(cfg, loadErr)
				})
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				notify(StoreConfig{}, werr)
			}
		}
	}()

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		close(done)
		_ = watcher.Close()
	}, nil
}
