// Package seed provides the monotonic counters the engine draws its
// randomness from.
package seed

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source yields a strictly increasing sequence of seeds.
type Source interface {
	Next() uint64
}

// Counter is a plain sequence starting after a given value.
type Counter struct {
	n atomic.Uint64
}

// NewCounter returns a Counter whose first seed is start+1.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

// Clock derives seeds from wall time divided into fixed slots, in the manner
// of a ledger slot number. Two calls inside the same slot still get distinct
// seeds: the clock never returns a value lower than or equal to its last one.
type Clock struct {
	mu    sync.Mutex
	slot  time.Duration
	now   func() time.Time
	epoch time.Time
	last  uint64
}

// DefaultSlot matches the cadence of the ledger clock the game first ran on.
const DefaultSlot = 400 * time.Millisecond

// NewClock returns a Clock counting slots of the given length since epoch.
func NewClock(slot time.Duration, epoch time.Time) *Clock {
	if slot <= 0 {
		slot = DefaultSlot
	}
	return &Clock{slot: slot, now: time.Now, epoch: epoch}
}

func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current uint64
	if elapsed := c.now().Sub(c.epoch); elapsed > 0 {
		current = uint64(elapsed / c.slot)
	}
	if current <= c.last {
		current = c.last + 1
	}
	c.last = current
	return current
}
