package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

// watchDebounce is how long the watcher waits for filesystem activity to
// settle before requesting a scan cycle.
const watchDebounce = 10 * time.Second

// watch triggers a scan cycle shortly after files change under any library
// root. Roots are re-read after every cycle, so libraries discovered or
// restored by a cycle are watched from then on.
func (idx *Indexer) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Error("Failed to create file watcher: %v", err)
		metrics.WatcherErrorsTotal.Inc()
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
	}()

	watched := make(map[string]bool)
	idx.refreshWatchedRoots(watcher, watched)
	idx.processWatcherEvents(watcher, watched, watchDebounce)
}

// refreshWatchedRoots starts watching every reachable library root not yet
// in watched and returns the number of directories added. A root that could
// not be watched is retried on the next refresh.
func (idx *Indexer) refreshWatchedRoots(watcher *fsnotify.Watcher, watched map[string]bool) int {
	libs, err := idx.db.ListLibraries(context.Background())
	if err != nil {
		logging.Error("Failed to list libraries for watcher: %v", err)
		metrics.WatcherErrorsTotal.Inc()
		return 0
	}

	added := 0
	for _, lib := range libs {
		root := idx.LibraryRoot(lib)
		if !lib.StillExists || watched[root] {
			continue
		}
		if n := addDirectoriesToWatcher(watcher, root); n > 0 {
			watched[root] = true
			added += n
		}
	}
	if added > 0 {
		logging.Info("Watching %d more directories for changes", added)
		metrics.WatchedDirectories.Add(float64(added))
	}
	return added
}

// addDirectoriesToWatcher adds root and every non-hidden directory below it.
func addDirectoriesToWatcher(watcher *fsnotify.Watcher, root string) int {
	watchCount := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			//nolint:nilerr // unreadable directories are not watched
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrorsTotal.Inc()
		} else {
			watchCount++
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher: %v", root, err)
		metrics.WatcherErrorsTotal.Inc()
	}
	return watchCount
}

// processWatcherEvents collects events until the indexer stops. The first
// relevant event arms a timer; when it fires a scan is triggered.
func (idx *Indexer) processWatcherEvents(watcher *fsnotify.Watcher, watched map[string]bool, debounce time.Duration) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !handleWatcherEvent(watcher, event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			}

		case <-fire:
			timer, fire = nil, nil
			logging.Debug("Filesystem changes detected, requesting scan")
			idx.TriggerScan()

		case <-idx.cycleDone:
			idx.refreshWatchedRoots(watcher, watched)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrorsTotal.Inc()

		case <-idx.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// handleWatcherEvent records an event, starts watching new directories, and
// reports whether the event can change the file set.
func handleWatcherEvent(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") || strings.Contains(filepath.ToSlash(event.Name), "/.") {
		return false
	}

	metrics.WatcherEventsTotal.WithLabelValues(getEventType(event.Op)).Inc()

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			metrics.WatchedDirectories.Add(float64(addDirectoriesToWatcher(watcher, event.Name)))
		}
	}

	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func getEventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
