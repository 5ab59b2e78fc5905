package bus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	next    uint64
	dropped atomic.Uint64
}

// Subscription is the handle returned by Subscribe. The subscriber owns it
// and must Close it when done.
type Subscription struct {
	id        uint64
	namespace string
	ch        chan Event
	bus       *Bus
	once      sync.Once
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]*Subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of evt.Kind.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber is full; publishing never blocks.
				b.dropped.Add(1)
			}
		}
	}
}

// Emit is shorthand for publishing an event stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Dropped reports how many events were discarded because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a subscriber for events whose kind starts with namespace.
// bufSize controls the channel buffer.
func (b *Bus) Subscribe(namespace string, bufSize int) *Subscription {
	sub := &Subscription{
		namespace: namespace,
		ch:        make(chan Event, bufSize),
		bus:       b,
	}
	b.mu.Lock()
	sub.id = b.next
	b.next++
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Events returns the channel the subscription receives on.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close removes the subscription from the bus. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}
