package config

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const pollInterval = 60 * time.Second

// Watcher reloads the config file on change and hands the result to
// onChange. fsnotify does the fast path; a slow mtime poll backstops
// editors and mounts that drop inotify events.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu        sync.Mutex
	lastMtime time.Time
}

func NewWatcher(path string, onChange func(*Config)) *Watcher {
	return &Watcher{path: path, onChange: onChange}
}

func (w *Watcher) Start(ctx context.Context) {
	if st, err := os.Stat(w.path); err == nil {
		w.lastMtime = st.ModTime()
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("Config Watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(w.path); err != nil {
		log.Printf("Config Watcher: failed to watch %s (%v), falling back to polling", w.path, err)
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
					if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
						log.Println("Config Watcher: file changed, reloading...")
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("Config Watcher Error: %v", err)
				}
			}
		}()
	}

	// Slow poll runs regardless, as a safety net.
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.reloadIfChanged()
			}
		}
	}()
}

func (w *Watcher) reloadIfChanged() {
	st, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := st.ModTime().After(w.lastMtime)
	w.mu.Unlock()
	if changed {
		w.reload()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("Config Watcher: reload failed: %v", err)
		return
	}
	if st, err := os.Stat(w.path); err == nil {
		w.mu.Lock()
		w.lastMtime = st.ModTime()
		w.mu.Unlock()
	}
	w.onChange(cfg)
}
