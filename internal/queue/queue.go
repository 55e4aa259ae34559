// Package queue provides the bounded top-K max-heap shared by IVFIndex
// search and SearchService's flat path, adapted from the teacher's
// container/heap-based queue.PriorityQueue. Where the teacher orders
// purely by Distance, this variant breaks ties by RowIndex (lower wins)
// so every search path is deterministic per spec.md §4.4/§4.6.
package queue

import "container/heap"

// Item is a single (distance, row) candidate held in the heap.
type Item struct {
	RowIndex int
	Distance float32
}

// less reports whether a is worse than b (larger distance, or equal
// distance and larger row index), so a is evicted before b when the heap
// is full. The heap root is always the current worst candidate.
func less(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.RowIndex > b.RowIndex
}

type innerHeap []Item

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h innerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x any)         { *h = append(*h, x.(Item)) }
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK is a bounded max-heap of size K over (distance, row index), lowest
// distance wins, ties broken by lowest row index (spec.md §4.4.2).
type TopK struct {
	k int
	h innerHeap
}

// NewTopK creates a bounded top-K collector. k must be > 0.
func NewTopK(k int) *TopK {
	return &TopK{k: k, h: make(innerHeap, 0, k)}
}

// Offer considers a candidate for inclusion in the top-K set.
func (t *TopK) Offer(rowIndex int, distance float32) {
	item := Item{RowIndex: rowIndex, Distance: distance}
	if t.h.Len() < t.k {
		heap.Push(&t.h, item)
		return
	}
	worst := t.h[0]
	if less(worst, item) {
		heap.Pop(&t.h)
		heap.Push(&t.h, item)
	}
}

// Len returns the number of candidates currently held (<= k).
func (t *TopK) Len() int { return t.h.Len() }

// Sorted drains the heap and returns its contents ascending by distance,
// ties broken by ascending row index.
func (t *TopK) Sorted() []Item {
	out := make([]Item, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Item)
	}
	return out
}
