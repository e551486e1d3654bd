package seed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter_Monotonic(t *testing.T) {
	c := NewCounter(10)
	assert.Equal(t, uint64(11), c.Next())
	assert.Equal(t, uint64(12), c.Next())
}

func TestCounter_ConcurrentDistinct(t *testing.T) {
	c := NewCounter(0)
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := c.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestClock_SlotsAndStrictIncrease(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := epoch.Add(10 * time.Second)
	c := NewClock(time.Second, epoch)
	c.now = func() time.Time { return now }

	assert.Equal(t, uint64(10), c.Next())
	// same slot: bumped past the last value
	assert.Equal(t, uint64(11), c.Next())

	now = epoch.Add(20 * time.Second)
	assert.Equal(t, uint64(20), c.Next())

	// clock stepping backwards never repeats a seed
	now = epoch
	assert.Equal(t, uint64(21), c.Next())
}

func TestNewClock_DefaultSlot(t *testing.T) {
	c := NewClock(0, time.Now())
	assert.Equal(t, DefaultSlot, c.slot)
}
