package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID   int
	Name string
}

func TestQueue_PushPop(t *testing.T) {
	q := New[testItem]()
	assert.True(t, q.Empty())

	_, ok := q.Pop()
	assert.False(t, ok, "pop from empty queue")

	q.Push(testItem{ID: 1, Name: "first"})
	q.Push(testItem{ID: 2}, testItem{ID: 3})
	assert.Equal(t, 3, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, testItem{ID: 1, Name: "first"}, first)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3, 4, 5)

	assert.Equal(t, []int{1, 2}, q.Drain(2))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []int{3, 4, 5}, q.Drain(0))
	assert.True(t, q.Empty())
	assert.Empty(t, q.Drain(10))
}

func TestQueue_DrainDoesNotAlias(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)
	got := q.Drain(2)
	q.Push(9)

	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, []int{3, 9}, q.Drain(0))
}

func TestQueue_Requeue(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)
	batch := q.Drain(2)
	q.Push(4)

	q.Requeue(batch...)
	assert.Equal(t, []int{1, 2, 3, 4}, q.Drain(0))

	q.Requeue()
	assert.True(t, q.Empty())
}

func TestQueue_BoundedEvictsOldest(t *testing.T) {
	q := NewBounded[int](3)
	q.Push(1, 2, 3, 4)
	q.Push(5)

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, []int{3, 4, 5}, q.Drain(0))
}

func TestQueue_BoundedRequeue(t *testing.T) {
	q := NewBounded[int](2)
	q.Push(3)
	q.Requeue(1, 2)

	assert.Equal(t, []int{2, 3}, q.Drain(0))
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(base*100 + j)
			}
		}(i)
	}

	var drained []int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				batch := q.Drain(7)
				mu.Lock()
				drained = append(drained, batch...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	drained = append(drained, q.Drain(0)...)
	assert.Len(t, drained, 1000)
}
