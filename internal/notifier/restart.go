package notifier

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"fswatch/internal/event"
)

// handleWatchError deals with an asynchronous error from the kernel
// watch. Overflow means events were lost and the watch set may be
// stale, so both cases resolve the same way: rebuild the subscription.
func (n *Notifier) handleWatchError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		n.logger.Warn("watch event queue overflowed", nil)
	} else {
		n.logger.Warn("watch error", map[string]string{"error": err.Error()})
	}
	n.scheduleRestart()
}

// scheduleRestart arms a single backoff timer for a resubscription
// attempt. Repeated triggers while one is pending are absorbed.
func (n *Notifier) scheduleRestart() {
	n.restartMu.Lock()
	defer n.restartMu.Unlock()

	if n.restartTimer != nil {
		return
	}
	if n.restartAttempts >= maxRestartAttempts {
		n.fatal(fmt.Errorf("watch lost after %d resubscription attempts", n.restartAttempts))
		return
	}

	delay := restartBaseDelay * time.Duration(1<<n.restartAttempts)
	n.restartAttempts++
	n.logger.Warn("scheduling watch resubscription", map[string]string{
		"attempt": strconv.Itoa(n.restartAttempts),
		"delay":   delay.String(),
	})
	n.restartTimer = time.AfterFunc(delay, n.attemptRestart)
}

// attemptRestart builds a replacement watcher, resubscribes every
// target on it and swaps it in. The old watcher is closed afterwards,
// which ends its forwarder goroutine.
func (n *Notifier) attemptRestart() {
	n.restartMu.Lock()
	n.restartTimer = nil
	n.restartMu.Unlock()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		n.restartFailed(fmt.Errorf("create replacement watcher: %w", err))
		return
	}
	if err := n.subscribeAll(replacement); err != nil {
		_ = replacement.Close()
		n.restartFailed(err)
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = replacement.Close()
		return
	}
	previous := n.watcher
	n.watcher = replacement
	n.mu.Unlock()

	go n.run(replacement)
	if previous != nil {
		_ = previous.Close()
	}

	n.restartMu.Lock()
	n.restartAttempts = 0
	n.restartMu.Unlock()

	n.registry.IncWatchRestart()
	n.bus.Publish(event.NewWatchEvent("", "watch_restarted"))
	n.logger.Info("watch resubscribed", map[string]string{
		"watched": strconv.Itoa(n.WatchedCount()),
	})
}

func (n *Notifier) restartFailed(err error) {
	n.logger.Warn("watch resubscription failed", map[string]string{"error": err.Error()})
	n.scheduleRestart()
}

// fatal hands the terminal error to the consumer. Only the first one
// matters; the channel holds exactly one slot.
func (n *Notifier) fatal(err error) {
	select {
	case n.errors <- err:
	default:
	}
}
