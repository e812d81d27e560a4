package watch

import (
	"sort"
	"time"
)

// Debouncer collapses a burst of relevant events into one settle signal,
// timed at last-event-time + interval. It is owned by the loop goroutine
// and needs no locking: Observe, C, Settle and Stop must all be called
// from that single control stream.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	pending  bool
	paths    map[string]struct{}
	events   int
	firstAt  time.Time
	lastAt   time.Time
}

func NewDebouncer(interval time.Duration) *Debouncer {
	if interval < 0 {
		interval = 0
	}
	return &Debouncer{
		interval: interval,
		paths:    make(map[string]struct{}),
	}
}

// Observe records a relevant event. The first event of a burst arms the
// timer, later ones extend the deadline. An event landing exactly on the
// deadline extends rather than settles, favoring fewer, later runs over
// firing into a still-in-progress write.
func (d *Debouncer) Observe(path string, now time.Time) {
	if d == nil {
		return
	}
	if !d.pending {
		d.pending = true
		d.firstAt = now
		if d.timer == nil {
			d.timer = time.NewTimer(d.interval)
		} else {
			d.timer.Reset(d.interval)
		}
	} else {
		if !d.timer.Stop() {
			select {
			case <-d.timer.C:
			default:
			}
		}
		d.timer.Reset(d.interval)
	}
	d.lastAt = now
	d.events++
	if path != "" {
		d.paths[path] = struct{}{}
	}
}

// C returns the timer channel while a burst is pending, nil otherwise.
// A nil channel blocks forever in select, so an idle debouncer simply
// never fires.
func (d *Debouncer) C() <-chan time.Time {
	if d == nil || !d.pending || d.timer == nil {
		return nil
	}
	return d.timer.C
}

// Settle drains the pending burst after the timer fired. The caller must
// have received from C first, which leaves the timer channel empty for
// the next Reset.
func (d *Debouncer) Settle() Burst {
	if d == nil {
		return Burst{}
	}
	paths := make([]string, 0, len(d.paths))
	for path := range d.paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	burst := Burst{
		Paths:   paths,
		Events:  d.events,
		FirstAt: d.firstAt,
		LastAt:  d.lastAt,
	}
	d.pending = false
	d.events = 0
	d.paths = make(map[string]struct{})
	return burst
}

// Stop cancels any pending burst and leaves the timer drained so a
// later Observe can rearm it.
func (d *Debouncer) Stop() {
	if d == nil {
		return
	}
	if d.timer != nil && !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	d.pending = false
	d.events = 0
	d.paths = make(map[string]struct{})
}
