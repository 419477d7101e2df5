// Package schedule provides time-ordered queues for deferred work.
package schedule

import "container/heap"

// Item is a queued value with its due time.
type Item[T any] struct {
	At    int64
	Key   string
	seq   uint64
	Value T
}

// Queue is a min-heap ordered by At, then Key, then insertion order.
// It is not safe for concurrent use.
type Queue[T any] struct {
	h   itemHeap[T]
	seq uint64
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push schedules v at time at. Key breaks ties between equal times.
func (q *Queue[T]) Push(at int64, key string, v T) {
	q.seq++
	heap.Push(&q.h, Item[T]{At: at, Key: key, seq: q.seq, Value: v})
}

// Peek returns the earliest item without removing it.
func (q *Queue[T]) Peek() (Item[T], bool) {
	if len(q.h) == 0 {
		return Item[T]{}, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest item.
func (q *Queue[T]) Pop() (Item[T], bool) {
	if len(q.h) == 0 {
		return Item[T]{}, false
	}
	return heap.Pop(&q.h).(Item[T]), true
}

func (q *Queue[T]) Len() int {
	return len(q.h)
}

func (q *Queue[T]) Empty() bool {
	return len(q.h) == 0
}

// DrainDue pops every item with At <= now in order and passes it to fn.
// It returns the number of items drained.
func (q *Queue[T]) DrainDue(now int64, fn func(Item[T])) int {
	n := 0
	for len(q.h) > 0 && q.h[0].At <= now {
		it := heap.Pop(&q.h).(Item[T])
		n++
		fn(it)
	}
	return n
}

// Items returns a copy of the queued items in heap order, not due order.
func (q *Queue[T]) Items() []Item[T] {
	out := make([]Item[T], len(q.h))
	copy(out, q.h)
	return out
}

type itemHeap[T any] []Item[T]

func (h itemHeap[T]) Len() int { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].At != h[j].At {
		return h[i].At < h[j].At
	}
	if h[i].Key != h[j].Key {
		return h[i].Key < h[j].Key
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(Item[T])) }
func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	var zero Item[T]
	old[n-1] = zero
	*h = old[:n-1]
	return it
}
