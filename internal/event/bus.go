package event

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"fswatch/internal/buffer"
)

const defaultSubscriberBuffer = 128

type BusOptions struct {
	Name             string
	SubscriberBuffer int
	HistorySize      int
}

// Bus fans events out to subscribers without blocking the publisher.
// A subscriber that cannot keep up loses events rather than stalling
// the watch loop.
type Bus struct {
	mu          sync.Mutex
	subscribers map[uint64]subscriber
	nextID      uint64
	closed      bool
	closeOnce   sync.Once
	options     BusOptions
	history     *buffer.Ring[Event]
	published   atomic.Int64
	dropped     atomic.Int64
}

// types is nil for subscribe-all subscriptions.
type subscriber struct {
	id    uint64
	ch    chan Event
	types map[string]struct{}
}

func NewBus(ctx context.Context, opts BusOptions) *Bus {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	bus := &Bus{
		subscribers: make(map[uint64]subscriber),
		options:     opts,
	}
	if opts.HistorySize > 0 {
		bus.history = buffer.NewRing[Event](opts.HistorySize)
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus) Subscribe() (<-chan Event, func()) {
	return b.subscribe(nil)
}

// SubscribeTypes delivers only events whose Type matches one of the
// given names. No usable names means no events.
func (b *Bus) SubscribeTypes(eventTypes ...string) (<-chan Event, func()) {
	typeSet := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType == "" {
			continue
		}
		typeSet[eventType] = struct{}{}
	}
	if len(typeSet) == 0 {
		return closedSubscription()
	}
	return b.subscribe(typeSet)
}

func (b *Bus) subscribe(types map[string]struct{}) (<-chan Event, func()) {
	if b == nil {
		return closedSubscription()
	}

	ch := make(chan Event, b.options.SubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subscribers[id] = subscriber{id: id, ch: ch, types: types}
	b.mu.Unlock()

	return ch, func() { b.removeSubscriber(id) }
}

func (b *Bus) Publish(value Event) {
	if b == nil || value == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.history != nil {
		b.history.Add(value)
	}
	targets := make([]subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	b.published.Add(1)
	if debugEventsEnabled {
		log.Printf("event bus %s: event %s", b.name(), value.Type())
	}

	for _, sub := range targets {
		if !sub.wants(value.Type()) {
			continue
		}
		b.send(sub, value)
	}
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]subscriber)
		b.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
	})
}

// DumpHistory returns a copy of the stored event history, oldest first.
func (b *Bus) DumpHistory() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return nil
	}
	return b.history.List()
}

// Stats reports how many events were published and how many sends were
// dropped on full subscriber buffers.
func (b *Bus) Stats() (published, dropped int64) {
	if b == nil {
		return 0, 0
	}
	return b.published.Load(), b.dropped.Load()
}

func (s subscriber) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// send never blocks. A cancel racing the snapshot can close the channel
// under us; that counts as a drop too.
func (b *Bus) send(sub subscriber, value Event) {
	defer func() {
		if recover() != nil {
			b.dropped.Add(1)
		}
	}()
	select {
	case sub.ch <- value:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) removeSubscriber(id uint64) {
	if b == nil {
		return
	}
	var ch chan Event
	b.mu.Lock()
	if existing, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		ch = existing.ch
	}
	b.mu.Unlock()

	if ch != nil {
		close(ch)
	}
}

func (b *Bus) name() string {
	if b.options.Name == "" {
		return "event_bus"
	}
	return b.options.Name
}

func closedSubscription() (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

var debugEventsEnabled = isEventDebugEnabled()

func isEventDebugEnabled() bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv("FSWATCH_EVENT_DEBUG")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
