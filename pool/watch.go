package pool

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches path for writes and hot-reloads the Debug and
// MaxShells knobs onto p. Per the design's non-goal on pool resizing,
// MaxShells is only ever raised: a reloaded value lower than the current
// one is ignored, and no reload evicts existing runners. A raised
// MaxShells spawns nothing by itself; it only admits a larger n in later
// Start calls. The returned stop function closes the watcher; callers
// should defer it.
func WatchConfig(path string, p *Pool) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pool: new watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("pool: watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(path, p.currentConfig())
				if err != nil {
					p.logf("config reload %s failed: %v", path, err)
					continue
				}
				p.applyConfig(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logf("config watcher error: %v", err)
			}
		}
	}()

	return func() error {
		err := watcher.Close()
		<-done
		return err
	}, nil
}
