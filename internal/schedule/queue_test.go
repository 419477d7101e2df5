package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByTimeKeyAndInsertion(t *testing.T) {
	q := New[string]()
	q.Push(20, "ABC", "late")
	q.Push(10, "XYZ", "early-xyz")
	q.Push(10, "ABC", "early-abc-1")
	q.Push(10, "ABC", "early-abc-2")
	q.Push(5, "ZZZ", "first")

	var got []string
	for !q.Empty() {
		it, ok := q.Pop()
		require.True(t, ok)
		got = append(got, it.Value)
	}
	assert.Equal(t, []string{"first", "early-abc-1", "early-abc-2", "early-xyz", "late"}, got)
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := New[int]()
	_, ok := q.Peek()
	assert.False(t, ok)

	q.Push(3, "A", 3)
	q.Push(1, "A", 1)
	it, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, it.Value)
	assert.Equal(t, 2, q.Len())
}

func TestQueuePopEmpty(t *testing.T) {
	q := New[int]()
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestDrainDueInclusiveBound(t *testing.T) {
	q := New[int]()
	q.Push(10, "A", 1)
	q.Push(11, "A", 2)

	var got []int
	n := q.DrainDue(10, func(it Item[int]) { got = append(got, it.Value) })
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, q.Len())
}

func TestDrainDueIsExactlyOnce(t *testing.T) {
	q := New[int]()
	q.Push(10, "A", 1)

	calls := 0
	q.DrainDue(15, func(Item[int]) { calls++ })
	q.DrainDue(15, func(Item[int]) { calls++ })
	q.DrainDue(100, func(Item[int]) { calls++ })
	assert.Equal(t, 1, calls)
	assert.True(t, q.Empty())
}

func TestDrainDueAcceptsPastEntries(t *testing.T) {
	q := New[int]()
	q.DrainDue(50, func(Item[int]) { t.Fatal("nothing queued yet") })

	// Pushed after the clock already passed its time.
	q.Push(5, "A", 7)
	var got []int
	q.DrainDue(40, func(it Item[int]) { got = append(got, it.Value) })
	assert.Equal(t, []int{7}, got)
}

func TestItemsIsACopy(t *testing.T) {
	q := New[int]()
	q.Push(1, "A", 1)
	items := q.Items()
	items[0].Value = 99
	it, _ := q.Peek()
	assert.Equal(t, 1, it.Value)
}
