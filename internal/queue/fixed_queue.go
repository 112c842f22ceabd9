package queue

import (
	"errors"
	"fmt"
)

const noSlot = -1

// ErrQueueFull occurs when a [FixedQueue] has no free slot left.
var ErrQueueFull = errors.New("no free slot in queue")

type fixedSlot[T comparable] struct {
	item T
	next int
}

// FixedQueue is a FIFO queue over a pre-allocated slot array. Queued slots are
// linked from head to tail through their next index, unused slots form a free
// chain. The capacity is fixed at construction time.
//
// A [FixedQueue] is not safe for concurrent use, the owner is expected to
// serialize access (e.g. with its own coarse lock).
type FixedQueue[T comparable] struct {
	slots []fixedSlot[T]
	free  int
	head  int
	tail  int
	len   int
}

// NewFixedQueue returns a pointer to a new [FixedQueue] with the given
// capacity, all of its slots on the free chain.
func NewFixedQueue[T comparable](capacity int) *FixedQueue[T] {
	q := &FixedQueue[T]{
		slots: make([]fixedSlot[T], max(capacity, 0)),
		free:  noSlot,
		head:  noSlot,
		tail:  noSlot,
	}

	for i := len(q.slots) - 1; i >= 0; i-- {
		q.slots[i].next = q.free
		q.free = i
	}

	return q
}

// Cap returns the number of slots of the queue.
func (q *FixedQueue[T]) Cap() int {
	return len(q.slots)
}

// Len returns the number of queued items.
func (q *FixedQueue[T]) Len() int {
	return q.len
}

// Full returns whether the free chain is exhausted.
func (q *FixedQueue[T]) Full() bool {
	return q.free == noSlot
}

// Enqueue takes the first free slot and appends the item at the tail.
func (q *FixedQueue[T]) Enqueue(item T) error {
	if q.free == noSlot {
		return fmt.Errorf("(queue-enqueue) %w (capacity %d)", ErrQueueFull, len(q.slots))
	}

	idx := q.free
	q.free = q.slots[idx].next

	q.slots[idx].item = item
	q.slots[idx].next = noSlot

	if q.tail != noSlot {
		q.slots[q.tail].next = idx
	} else {
		q.head = idx
	}
	q.tail = idx
	q.len++

	return nil
}

// Dequeue removes the head item and puts its slot back on the free chain.
func (q *FixedQueue[T]) Dequeue() (T, bool) { //nolint:ireturn
	if q.head == noSlot {
		var zeroVal T

		return zeroVal, false
	}

	idx := q.head
	item := q.slots[idx].item

	q.head = q.slots[idx].next
	if q.head == noSlot {
		q.tail = noSlot
	}

	q.release(idx)

	return item, true
}

// Remove unlinks the first occurrence of item, wherever it is queued. It
// returns false if the item was not queued.
func (q *FixedQueue[T]) Remove(item T) bool {
	prev := noSlot

	for idx := q.head; idx != noSlot; idx = q.slots[idx].next {
		if q.slots[idx].item != item {
			prev = idx

			continue
		}

		next := q.slots[idx].next
		if prev == noSlot {
			q.head = next
		} else {
			q.slots[prev].next = next
		}
		if next == noSlot {
			q.tail = prev
		}

		q.release(idx)

		return true
	}

	return false
}

// Items returns the queued items in FIFO order.
func (q *FixedQueue[T]) Items() []T {
	items := make([]T, 0, q.len)

	for idx := q.head; idx != noSlot; idx = q.slots[idx].next {
		items = append(items, q.slots[idx].item)
	}

	return items
}

// Contains returns whether the item is queued.
func (q *FixedQueue[T]) Contains(item T) bool {
	for idx := q.head; idx != noSlot; idx = q.slots[idx].next {
		if q.slots[idx].item == item {
			return true
		}
	}

	return false
}

func (q *FixedQueue[T]) release(idx int) {
	var zeroVal T

	q.slots[idx].item = zeroVal
	q.slots[idx].next = q.free
	q.free = idx
	q.len--
}
