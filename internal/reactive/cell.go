// Package reactive provides the replaying multicast value holder shared by
// repositories and providers.
package reactive

import "sync"

// Observable is anything that can be subscribed to.
// The returned func detaches the subscriber and closes the channel.
type Observable[T any] interface {
	Observe() (<-chan T, func())
}

// Cell holds the latest value and fans it out to all subscribers.
// A subscriber that attaches late first receives the current value.
// Delivery never blocks the producer: each subscriber has a one-slot
// mailbox and a slow reader only ever sees the freshest value.
type Cell[T any] struct {
	mu       sync.RWMutex
	value    T
	hasValue bool
	subs     map[chan T]struct{}
}

// NewCell creates an empty cell. Subscribers receive nothing until the first Set.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{subs: make(map[chan T]struct{})}
}

// NewCellWithValue creates a cell seeded with v.
func NewCellWithValue[T any](v T) *Cell[T] {
	c := NewCell[T]()
	c.value = v
	c.hasValue = true
	return c
}

// Set replaces the current value and publishes it to every subscriber.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	c.hasValue = true
	for ch := range c.subs {
		deliver(ch, v)
	}
}

// Value returns the current value and whether one was ever set.
func (c *Cell[T]) Value() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.hasValue
}

// Observe subscribes to the cell. The current value, if any, is replayed first.
func (c *Cell[T]) Observe() (<-chan T, func()) {
	ch := make(chan T, 1)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	if c.hasValue {
		ch <- c.value
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of attached subscribers.
func (c *Cell[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// deliver replaces a stale undelivered value with v. Callers hold the write lock,
// so no other producer can refill the slot between the drain and the send.
func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
