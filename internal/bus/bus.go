package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus fans change notifications out to observers of the read model.
// Subscribers filter by kind prefix. Publishing never blocks: a subscriber
// whose buffer is full misses the event and is expected to re-read state.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	closed bool
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends evt to all subscribers whose namespace is a prefix of its kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.namespace) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Notify publishes an event of kind stamped with the current time.
func (b *Bus) Notify(kind string, payload any) {
	if b == nil {
		return
	}
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe returns a channel receiving events whose kind starts with
// namespace, and a function that cancels the subscription and closes the
// channel. Subscribing to a closed bus yields a closed channel.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

// Close ends every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.closed = true
}
