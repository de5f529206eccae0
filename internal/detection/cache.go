package detection

import (
	"sort"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is the channel capacity of each subscriber.
const subscriberBuffer = 16

// Cache holds the latest detection per customer and fans published events out
// to subscribers. Slow subscribers miss events instead of blocking publishers.
type Cache struct {
	mu     sync.RWMutex
	events map[string]Event

	subMu       sync.RWMutex
	subscribers map[uint64]chan Event
	nextSubID   uint64
	dropped     atomic.Uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		events:      make(map[string]Event),
		subscribers: make(map[uint64]chan Event),
	}
}

// Publish stores e as the customer's latest detection (last write wins) and notifies subscribers.
func (c *Cache) Publish(e Event) {
	c.mu.Lock()
	c.events[e.CustomerID] = e
	c.mu.Unlock()

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- e:
		default:
			c.dropped.Add(1)
		}
	}
}

// Remove deletes the customer's detection and reports whether one existed.
func (c *Cache) Remove(customerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.events[customerID]
	delete(c.events, customerID)
	return ok
}

// Get returns the customer's latest detection.
func (c *Cache) Get(customerID string) (Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.events[customerID]
	return e, ok
}

// Len returns the number of cached detections.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Recent returns up to n detections, newest first. Equal timestamps are ordered by customer id.
func (c *Cache) Recent(n int) []Event {
	if n <= 0 {
		return []Event{}
	}

	c.mu.RLock()
	out := make([]Event, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].CustomerID < out[j].CustomerID
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Latest returns the newest detection.
func (c *Cache) Latest() (Event, bool) {
	recent := c.Recent(1)
	if len(recent) == 0 {
		return Event{}, false
	}
	return recent[0], true
}

// Subscribe returns a channel receiving every subsequently published event and
// a function that unsubscribes and closes the channel.
func (c *Cache) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (c *Cache) Subscribers() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscribers)
}

// Dropped returns how many subscriber deliveries were skipped because a buffer was full.
func (c *Cache) Dropped() uint64 {
	return c.dropped.Load()
}
