package license

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher monitors the managed path and reloads on change. fsnotify
// is used when available; a polling loop always runs as a fallback.
func (m *Manager) StartWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("[license] watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(m.path); err != nil {
		log.Printf("[license] watcher: failed to watch %s (%v), falling back to polling", m.path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
						// let writers finish before decoding
						time.Sleep(100 * time.Millisecond)
						if m.ReloadIfChanged(ctx) {
							log.Printf("[license] watcher: %s changed, reloaded", event.Name)
						}
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[license] watcher error: %v", err)
				}
			}
		}()
	}

	interval := m.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReloadIfChanged(ctx)
			}
		}
	}()
}
