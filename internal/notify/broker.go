// Package notify fans cache change events out to subscribers.
package notify

import (
	"sync"

	"github.com/mithrel/whtreader/pkg/api"
)

// DefaultBuffer is the subscription buffer used when none is requested.
const DefaultBuffer = 16

// Broker delivers each published event at most once to every current
// subscriber. Publish never blocks: a subscriber whose buffer is full misses
// the event and its drop counter is incremented.
type Broker struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch      chan api.Event
	dropped int
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(buffer int) (<-chan api.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscription{ch: make(chan api.Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
		})
	}
}

// Publish sends ev to every subscriber without waiting. It returns the number
// of subscribers that received it.
func (b *Broker) Publish(ev api.Event) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			sub.dropped++
		}
	}
	return delivered
}

// Dropped reports how many events were missed across all current subscribers.
func (b *Broker) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for sub := range b.subs {
		n += sub.dropped
	}
	return n
}

// Close unregisters and closes every subscriber. Later subscriptions get a
// closed channel and later publishes are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
