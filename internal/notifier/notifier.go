package notifier

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fswatch/internal/event"
	"fswatch/internal/fsutil"
	"fswatch/internal/logging"
	"fswatch/internal/metrics"
	"fswatch/internal/watch"
)

const (
	defaultEventBuffer = 64
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

// Options configures a Notifier.
type Options struct {
	Targets    []fsutil.Target
	Logger     *logging.Logger
	Registry   *metrics.Registry
	Bus        *event.Bus
	BufferSize int
}

// Notifier adapts fsnotify into the loop's raw event stream. File
// targets are observed through their parent directory, which survives
// the rename-swap pattern editors use on save; directory targets are
// watched recursively with new subdirectories added as they appear.
// Subscription loss is retried with backoff before it turns fatal.
type Notifier struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	targets  []fsutil.Target
	watched  map[string]struct{}
	closed   bool
	events   chan watch.RawEvent
	errors   chan error
	done     chan struct{}
	logger   *logging.Logger
	registry *metrics.Registry
	bus      *event.Bus

	restartMu       sync.Mutex
	restartAttempts int
	restartTimer    *time.Timer
}

func New(options Options) (*Notifier, error) {
	if len(options.Targets) == 0 {
		return nil, errors.New("at least one watch target is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	bufferSize := options.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultEventBuffer
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	notifier := &Notifier{
		watcher:  watcher,
		targets:  options.Targets,
		watched:  make(map[string]struct{}),
		events:   make(chan watch.RawEvent, bufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
		logger:   options.Logger,
		registry: registry,
		bus:      options.Bus,
	}

	if err := notifier.subscribeAll(watcher); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go notifier.run(watcher)
	return notifier, nil
}

// Events delivers normalized raw events until the notifier closes.
func (n *Notifier) Events() <-chan watch.RawEvent {
	if n == nil {
		return nil
	}
	return n.events
}

// Errors delivers at most one fatal error, after resubscription retries
// are exhausted.
func (n *Notifier) Errors() <-chan error {
	if n == nil {
		return nil
	}
	return n.errors
}

// WatchedCount reports how many filesystem watches are active.
func (n *Notifier) WatchedCount() int {
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.watched)
}

func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	watcher := n.watcher
	n.mu.Unlock()

	n.restartMu.Lock()
	if n.restartTimer != nil {
		n.restartTimer.Stop()
		n.restartTimer = nil
	}
	n.restartMu.Unlock()

	close(n.done)
	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

func (n *Notifier) run(watcher *fsnotify.Watcher) {
	for {
		select {
		case fsEvent, ok := <-watcher.Events:
			if !ok {
				return
			}
			n.handleFsEvent(fsEvent)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			n.handleWatchError(err)
		case <-n.done:
			return
		}
	}
}

func (n *Notifier) handleFsEvent(fsEvent fsnotify.Event) {
	op, ok := normalizeOp(fsEvent.Op)
	if !ok {
		return
	}

	switch op {
	case watch.OpCreate:
		n.maybeWatchNewDir(fsEvent.Name)
	case watch.OpRemove, watch.OpRename:
		n.handleWatchedGone(fsEvent.Name)
	}

	raw := watch.RawEvent{
		Op:    op,
		Paths: []string{fsEvent.Name},
		Time:  time.Now(),
	}
	select {
	case n.events <- raw:
	case <-n.done:
	}
}

// normalizeOp maps the fsnotify bitmask onto a single op. Chmod-only
// notifications are noise for a watch-and-run tool and are dropped.
func normalizeOp(op fsnotify.Op) (watch.Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return watch.OpCreate, true
	case op.Has(fsnotify.Remove):
		return watch.OpRemove, true
	case op.Has(fsnotify.Rename):
		return watch.OpRename, true
	case op.Has(fsnotify.Write):
		return watch.OpWrite, true
	default:
		return "", false
	}
}
