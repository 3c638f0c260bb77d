package backend

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watcher invalidates the selector's cache when the repo config file
// changes on disk, so edits take effect before the TTL expires.
type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts a filesystem watcher on the repo config directory. Calling
// Watch on a selector without a repo path is a no-op. The watcher is
// best-effort: if it cannot be created the TTL alone bounds staleness.
func (s *Selector) Watch() error {
	if s.repoPath == "" || s.watcher != nil {
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(filepath.Join(s.repoPath, ConfigPath))
	if err := fs.Add(dir); err != nil {
		fs.Close()
		// The .foreman directory may not exist yet; the TTL covers us.
		return nil
	}

	w := &watcher{fs: fs, done: make(chan struct{})}
	s.watcher = w

	go func() {
		target := filepath.Base(ConfigPath)
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-fs.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Printf("[backend] repo config changed, invalidating cache")
					s.Refresh()
				}
			case <-fs.Errors:
				// Keep watching; the TTL bounds staleness regardless.
			}
		}
	}()

	return nil
}

// Close stops the filesystem watcher if one is running.
func (s *Selector) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.watcher.done)
	err := s.watcher.fs.Close()
	s.watcher = nil
	return err
}
