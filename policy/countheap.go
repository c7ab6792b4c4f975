package policy

import "container/heap"

// countHeap is a lazily-cleaned priority queue of hit-count buckets,
// generalizing the priority queue the cache package used to keep a
// cached lowest/highest count instead of rescanning every bucket on each
// eviction. Entries for counts whose bucket has since emptied are left
// in place and skipped on pop rather than removed eagerly, since
// removing an arbitrary element from a binary heap costs as much as a
// rebuild; emptied counts are pruned lazily the next time they surface.
type countHeap struct {
	counts []int
	min    bool // true: LFU (smallest count first); false: MFU (largest first)
}

func newCountHeap(min bool) *countHeap {
	h := &countHeap{min: min}
	heap.Init(h)
	return h
}

func (h countHeap) Len() int { return len(h.counts) }

func (h countHeap) Less(i, j int) bool {
	if h.min {
		return h.counts[i] < h.counts[j]
	}
	return h.counts[i] > h.counts[j]
}

func (h countHeap) Swap(i, j int) { h.counts[i], h.counts[j] = h.counts[j], h.counts[i] }

func (h *countHeap) Push(x any) { h.counts = append(h.counts, x.(int)) }

func (h *countHeap) Pop() any {
	old := h.counts
	n := len(old)
	v := old[n-1]
	h.counts = old[:n-1]
	return v
}

func (h *countHeap) push(count int) { heap.Push(h, count) }

// peekValid returns the topmost count whose bucket is still non-empty
// according to isLive, discarding stale entries above it. It returns
// ok=false once the heap has been drained of live entries.
func (h *countHeap) peekValid(isLive func(count int) bool) (int, bool) {
	for h.Len() > 0 {
		top := h.counts[0]
		if isLive(top) {
			return top, true
		}
		heap.Pop(h)
	}
	return 0, false
}
