package notifier

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"fswatch/internal/event"
	"fswatch/internal/fsutil"
)

// subscribeAll registers every target on the given watcher and rebuilds
// the watched set. Directory targets are added along with all their
// subdirectories; file targets are added through their parent directory
// so the watch survives the remove-and-recreate dance editors perform
// on save.
func (n *Notifier) subscribeAll(watcher *fsnotify.Watcher) error {
	watched := make(map[string]struct{})
	for _, target := range n.targets {
		if target.IsDir {
			dirs, err := collectDirs(target.Path)
			if err != nil {
				return fmt.Errorf("walk %s: %w", target.Path, err)
			}
			for _, dir := range dirs {
				if err := addWatch(watcher, watched, dir); err != nil {
					return err
				}
			}
			continue
		}
		parent := filepath.Dir(target.Path)
		if err := addWatch(watcher, watched, parent); err != nil {
			return err
		}
	}

	n.mu.Lock()
	n.watched = watched
	n.mu.Unlock()
	return nil
}

func addWatch(watcher *fsnotify.Watcher, watched map[string]struct{}, path string) error {
	if _, ok := watched[path]; ok {
		return nil
	}
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	watched[path] = struct{}{}
	return nil
}

// collectDirs returns root and every directory below it. Unreadable
// subdirectories are skipped rather than failing the whole walk.
func collectDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return fs.SkipDir
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// maybeWatchNewDir extends the watch to a directory created under a
// recursive target. Files already inside by the time the watch lands
// produce no retroactive events; the create event for the directory
// itself still triggers a run.
func (n *Notifier) maybeWatchNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if !n.underDirTarget(path) {
		return
	}

	n.mu.Lock()
	watcher := n.watcher
	closed := n.closed
	n.mu.Unlock()
	if closed || watcher == nil {
		return
	}

	dirs, err := collectDirs(path)
	if err != nil {
		n.logger.Warn("failed to scan new directory", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	for _, dir := range dirs {
		n.mu.Lock()
		_, already := n.watched[dir]
		n.mu.Unlock()
		if already {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			n.logger.Warn("failed to watch new directory", map[string]string{
				"path":  dir,
				"error": err.Error(),
			})
			continue
		}
		n.mu.Lock()
		n.watched[dir] = struct{}{}
		n.mu.Unlock()
		n.logger.Debug("watching new directory", map[string]string{"path": dir})
		n.bus.Publish(event.NewWatchEvent(dir, "watch_path_added"))
	}
}

func (n *Notifier) underDirTarget(path string) bool {
	for _, target := range n.targets {
		if target.IsDir && fsutil.Within(target.Path, path) {
			return true
		}
	}
	return false
}

// handleWatchedGone reacts to the removal or rename of a directory we
// hold a watch on. The kernel drops the watch with the inode, so a
// resubscription pass is scheduled to pick the path back up if it
// reappears.
func (n *Notifier) handleWatchedGone(path string) {
	n.mu.Lock()
	_, wasWatched := n.watched[path]
	if wasWatched {
		delete(n.watched, path)
	}
	n.mu.Unlock()
	if !wasWatched {
		return
	}

	n.logger.Warn("watched directory disappeared", map[string]string{"path": path})
	n.scheduleRestart()
}
