// Package queue provides a priority queue for work waiting on a free slot.
//
// PriorityQueue is a binary min-heap over (priority desc, enqueue time asc).
// Items with equal priority leave the queue in the order they entered it, so
// the heap behaves as a stable priority queue. An id index allows an item that
// is still waiting to be found and removed in O(log n), which is how a
// cancelled item is pulled out before it ever runs.
//
// # Usage
//
//	q := queue.New[string]()
//	q.Enqueue("a", 5, "first")
//	q.Enqueue("b", 9, "urgent")
//
//	it, _ := q.DequeueHighest() // it.ID == "b"
//
// PriorityQueue is not safe for concurrent use. Owners guard it with their own
// lock.
package queue
