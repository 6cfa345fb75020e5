// Package events implements the typed publish/subscribe bus for pool
// lifecycle notifications.
package events

import (
	"sync"
	"time"

	"github.com/magickw/linkDAO-sub004/internal/types"
)

const subscriberBuffer = 16

// Bus fans lifecycle events out to registered subscribers. Publishing never
// blocks: a subscriber that falls behind has events dropped, not queued
// without bound.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan types.Event]struct{}
	closed bool
	logger types.Logger
}

// New creates an event bus.
func New(logger types.Logger) *Bus {
	return &Bus{
		subs:   make(map[chan types.Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its receive channel.
// The channel is closed on Unsubscribe or bus shutdown.
func (b *Bus) Subscribe() chan types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan types.Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish broadcasts an event to all subscribers without blocking.
func (b *Bus) Publish(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event subscriber buffer full, event dropped",
				"event", string(ev.Type),
				"server_id", ev.ServerID,
			)
		}
	}
}

// Close shuts down the bus and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan types.Event]struct{})
}
