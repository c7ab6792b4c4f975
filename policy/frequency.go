package policy

import (
	"container/list"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/logger"
)

// frequencyPolicy backs LFU and MFU. Tracked keys are bucketed by hit
// count; within a bucket, insertion order breaks ties (§9 open question
// (a): "ties broken by the key that has sat at that count the longest").
// A countHeap keeps the current extreme count so Evict doesn't rescan
// every bucket; counts whose bucket has emptied stay in the heap until
// Evict's peekValid pops them.
type frequencyPolicy struct {
	ttlTracker

	kind Kind
	log  logger.ILogger
	min  bool // true: LFU (evict lowest count); false: MFU (evict highest)

	buckets  map[int]*list.List
	location map[string]*list.Element
	counts   map[string]int
	heap     *countHeap
}

func newFrequencyPolicy(kind Kind, scheduler clock.Scheduler, log logger.ILogger, min bool) *frequencyPolicy {
	return &frequencyPolicy{
		ttlTracker: newTTLTracker(scheduler),
		kind:       kind,
		log:        log,
		min:        min,
		buckets:    make(map[int]*list.List),
		location:   make(map[string]*list.Element),
		counts:     make(map[string]int),
		heap:       newCountHeap(min),
	}
}

func (p *frequencyPolicy) Kind() Kind { return p.kind }

func (p *frequencyPolicy) bucketLive(count int) bool {
	b, ok := p.buckets[count]
	return ok && b.Len() > 0
}

func (p *frequencyPolicy) bucketFor(count int) *list.List {
	b, ok := p.buckets[count]
	if !ok {
		b = list.New()
		p.buckets[count] = b
		p.heap.push(count)
	}
	return b
}

// removeFromBucket removes key's element from count's bucket and, if
// that empties the bucket, drops the map entry entirely. This is what
// lets bucketFor tell a genuinely new count (must be re-pushed onto the
// heap) apart from one that was only ever lazily popped by peekValid —
// without it, a count that emptied and was lazily popped would still
// have a map entry, so a later bucketFor for the same count would skip
// the heap push and leave it permanently unreachable by Evict.
func (p *frequencyPolicy) removeFromBucket(count int, key string) {
	bucket := p.buckets[count]
	bucket.Remove(p.location[key])
	if bucket.Len() == 0 {
		delete(p.buckets, count)
	}
}

func (p *frequencyPolicy) Track(key string) {
	if _, ok := p.counts[key]; ok {
		p.log.Warningf("policy(%s): track called for already-tracked key %q", p.kind, key)
		return
	}
	p.counts[key] = 0
	p.location[key] = p.bucketFor(0).PushBack(key)
}

func (p *frequencyPolicy) StopTracking(key string) {
	count, ok := p.counts[key]
	if !ok {
		p.log.Warningf("policy(%s): stopTracking called for untracked key %q", p.kind, key)
		return
	}
	p.removeFromBucket(count, key)
	delete(p.location, key)
	delete(p.counts, key)
	p.clearTTL(key)
}

func (p *frequencyPolicy) Hit(key string) {
	count, ok := p.counts[key]
	if !ok {
		return
	}
	p.removeFromBucket(count, key)

	newCount := count + 1
	p.counts[key] = newCount
	p.location[key] = p.bucketFor(newCount).PushBack(key)
}

func (p *frequencyPolicy) Evict() (string, bool) {
	count, ok := p.heap.peekValid(p.bucketLive)
	if !ok {
		p.log.Warningf("policy(%s): evict called with nothing tracked", p.kind)
		return "", false
	}

	key := p.buckets[count].Front().Value.(string)
	p.removeFromBucket(count, key)
	delete(p.location, key)
	delete(p.counts, key)
	p.clearTTL(key)
	return key, true
}

func (p *frequencyPolicy) RegisterTTL(key string, d time.Duration) { p.registerTTL(key, d) }
func (p *frequencyPolicy) ClearTTL(key string)                     { p.clearTTL(key) }
func (p *frequencyPolicy) Events() <-chan Event                    { return p.eventsChan() }
func (p *frequencyPolicy) Close()                                  { p.closeTimers() }

// GetSnapshot walks buckets in map order, which is unspecified, and each
// bucket front to back. Keys that share a count share a bucket, so their
// relative order in Order matches the bucket's, and replaying Track in
// Order and then Hit per Counts (see ApplySnapshot) reconstructs the same
// bucket membership and tie-break order.
func (p *frequencyPolicy) GetSnapshot() Snapshot {
	order := make([]string, 0, len(p.counts))
	counts := make(map[string]int, len(p.counts))

	for count, bucket := range p.buckets {
		for elem := bucket.Front(); elem != nil; elem = elem.Next() {
			key := elem.Value.(string)
			order = append(order, key)
			counts[key] = count
		}
	}

	return Snapshot{Order: order, Counts: counts}
}

// ApplySnapshot rebuilds bucket membership by replaying Track for every
// surviving key in Order, then Hit exactly Counts[key] times — this
// reuses the same logic Track/Hit already use to place a key in its
// bucket and preserves insertion-order tie-breaking, rather than poking
// at bucket internals directly.
func (p *frequencyPolicy) ApplySnapshot(validKeys map[string]struct{}, snapshot Snapshot) {
	p.buckets = make(map[int]*list.List)
	p.location = make(map[string]*list.Element)
	p.counts = make(map[string]int)
	p.heap = newCountHeap(p.min)

	for _, key := range snapshot.Order {
		if _, ok := validKeys[key]; !ok {
			continue
		}
		p.Track(key)
		for i := 0; i < snapshot.Counts[key]; i++ {
			p.Hit(key)
		}
	}
}
