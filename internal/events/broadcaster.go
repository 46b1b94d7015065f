// Package events fans committed account snapshots out to live readers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const defaultBuffer = 64

// Broadcaster delivers published values to every subscriber channel. A
// subscriber whose buffer is full misses the value; Publish never blocks.
type Broadcaster[T any] struct {
	mu      sync.RWMutex
	subs    map[chan T]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// AccountBroadcaster carries the snapshot published after each commit.
type AccountBroadcaster = Broadcaster[domain.AccountSnapshot]

// NewAccountBroadcaster creates a snapshot broadcaster with the given
// per-subscriber buffer.
func NewAccountBroadcaster(buffer int) *AccountBroadcaster {
	return New[domain.AccountSnapshot](buffer)
}

func New[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel that receives values until Unsubscribe or
// Close. After Close it returns an already closed channel.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close closes every subscriber channel; later publishes are no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped for full buffers.
func (b *Broadcaster[T]) Dropped() uint64 {
	return b.dropped.Load()
}
