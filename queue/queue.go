package queue

import (
	"container/heap"
	"time"
)

// Priority bounds. Higher values leave the queue first.
const (
	MinPriority     = 0
	MaxPriority     = 10
	DefaultPriority = 5
)

// Item is one waiting entry.
type Item[T any] struct {
	// ID identifies the item for FindByID and RemoveByID.
	ID string

	// Priority orders items; higher first.
	Priority int

	// EnqueuedAt is when the item entered the queue. It carries a monotonic
	// clock reading and breaks ties between equal priorities.
	EnqueuedAt time.Time

	// Value is the payload. The item owns it until dequeued.
	Value T

	seq   uint64
	index int
}

// Index returns the item's current heap position, or -1 once it has left the
// queue.
func (it *Item[T]) Index() int {
	return it.index
}

// Less reports whether a should leave the queue before b.
func Less[T any](a, b *Item[T]) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.seq < b.seq
}

// entries implements heap.Interface.
type entries[T any] []*Item[T]

func (e entries[T]) Len() int           { return len(e) }
func (e entries[T]) Less(i, j int) bool { return Less(e[i], e[j]) }
func (e entries[T]) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
	e[i].index = i
	e[j].index = j
}

func (e *entries[T]) Push(x any) {
	it := x.(*Item[T])
	it.index = len(*e)
	*e = append(*e, it)
}

func (e *entries[T]) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*e = old[:n-1]
	return it
}

// PriorityQueue holds waiting items ordered by priority then enqueue time.
type PriorityQueue[T any] struct {
	heap  entries[T]
	byID  map[string]*Item[T]
	seq   uint64
	clock func() time.Time
}

// New creates an empty priority queue.
func New[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{
		byID:  make(map[string]*Item[T]),
		clock: time.Now,
	}
}

// Enqueue inserts a value and returns its item.
//
// Ids must not be reused while an earlier item with the same id is still
// queued. A duplicate overwrites the id index; both entries stay in the heap
// and only the newest one can be found by id.
func (q *PriorityQueue[T]) Enqueue(id string, priority int, value T) *Item[T] {
	q.seq++
	it := &Item[T]{
		ID:         id,
		Priority:   priority,
		EnqueuedAt: q.clock(),
		Value:      value,
		seq:        q.seq,
	}
	heap.Push(&q.heap, it)
	q.byID[id] = it
	return it
}

// DequeueHighest removes and returns the root item. It returns false when the
// queue is empty.
func (q *PriorityQueue[T]) DequeueHighest() (*Item[T], bool) {
	if len(q.heap) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.heap).(*Item[T])
	q.unindex(it)
	return it, true
}

// Peek returns the root item without removing it.
func (q *PriorityQueue[T]) Peek() (*Item[T], bool) {
	if len(q.heap) == 0 {
		return nil, false
	}
	return q.heap[0], true
}

// FindByID returns the queued item indexed under id.
func (q *PriorityQueue[T]) FindByID(id string) (*Item[T], bool) {
	it, ok := q.byID[id]
	return it, ok
}

// RemoveByID removes the item indexed under id. The vacated slot is filled by
// the last heap entry, which is then sifted up or down as needed.
func (q *PriorityQueue[T]) RemoveByID(id string) (*Item[T], bool) {
	it, ok := q.byID[id]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byID, id)
	return it, true
}

// Len returns the number of queued items.
func (q *PriorityQueue[T]) Len() int {
	return len(q.heap)
}

// IsEmpty reports whether no items are queued.
func (q *PriorityQueue[T]) IsEmpty() bool {
	return len(q.heap) == 0
}

// DrainAll removes every item and returns them in dequeue order.
func (q *PriorityQueue[T]) DrainAll() []*Item[T] {
	out := make([]*Item[T], 0, len(q.heap))
	for len(q.heap) > 0 {
		it := heap.Pop(&q.heap).(*Item[T])
		out = append(out, it)
	}
	clear(q.byID)
	return out
}

// IDs returns the ids of queued items in dequeue order without modifying the
// queue.
func (q *PriorityQueue[T]) IDs() []string {
	if len(q.heap) == 0 {
		return nil
	}
	scratch := make(entries[T], len(q.heap))
	for i, it := range q.heap {
		// Copies keep the live items' indexes untouched.
		cp := *it
		cp.index = i
		scratch[i] = &cp
	}

	ids := make([]string, 0, len(scratch))
	for len(scratch) > 0 {
		ids = append(ids, heap.Pop(&scratch).(*Item[T]).ID)
	}
	return ids
}

// unindex drops the id mapping only when it still points at it, so a stale
// duplicate leaving the heap does not orphan the newer entry.
func (q *PriorityQueue[T]) unindex(it *Item[T]) {
	if cur, ok := q.byID[it.ID]; ok && cur == it {
		delete(q.byID, it.ID)
	}
}
