package aggregator

import (
	"sync"
	"time"
)

// Cell holds the most recently observed value of one source.
type Cell[T any] struct {
	mu      sync.RWMutex
	value   T
	set     bool
	updated time.Time
}

// Set replaces the stored value and records when it arrived.
func (c *Cell[T]) Set(v T, at time.Time) {
	c.mu.Lock()
	c.value = v
	c.set = true
	c.updated = at
	c.mu.Unlock()
}

// Get returns the latest value and whether one was ever stored.
func (c *Cell[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.set
}

// Updated returns the arrival time of the latest value.
func (c *Cell[T]) Updated() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated, c.set
}
