package policy

import (
	"container/list"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/logger"
)

// queuePolicy backs LRU, MRU and FIFO: all three keep tracked keys in a
// single container/list.List ordered oldest-to-newest at the front, and
// differ only in which end Evict pops from and whether Hit moves a key
// to the back (§4.2's per-variant table collapses to these two knobs).
type queuePolicy struct {
	ttlTracker

	kind Kind
	log  logger.ILogger

	evictFromFront bool // true: LRU/FIFO evict the oldest; false: MRU evicts the newest
	hitMovesToBack bool // true: LRU/MRU; false: FIFO

	list     *list.List
	elements map[string]*list.Element
}

func newQueuePolicy(kind Kind, scheduler clock.Scheduler, log logger.ILogger, evictFromFront, hitMovesToBack bool) *queuePolicy {
	return &queuePolicy{
		ttlTracker:     newTTLTracker(scheduler),
		kind:           kind,
		log:            log,
		evictFromFront: evictFromFront,
		hitMovesToBack: hitMovesToBack,
		list:           list.New(),
		elements:       make(map[string]*list.Element),
	}
}

func (p *queuePolicy) Kind() Kind { return p.kind }

func (p *queuePolicy) Track(key string) {
	if _, ok := p.elements[key]; ok {
		p.log.Warningf("policy(%s): track called for already-tracked key %q", p.kind, key)
		return
	}
	p.elements[key] = p.list.PushBack(key)
}

func (p *queuePolicy) StopTracking(key string) {
	elem, ok := p.elements[key]
	if !ok {
		p.log.Warningf("policy(%s): stopTracking called for untracked key %q", p.kind, key)
		return
	}
	p.list.Remove(elem)
	delete(p.elements, key)
	p.clearTTL(key)
}

func (p *queuePolicy) Hit(key string) {
	elem, ok := p.elements[key]
	if !ok {
		return
	}
	if p.hitMovesToBack {
		p.list.MoveToBack(elem)
	}
}

func (p *queuePolicy) Evict() (string, bool) {
	var elem *list.Element
	if p.evictFromFront {
		elem = p.list.Front()
	} else {
		elem = p.list.Back()
	}
	if elem == nil {
		p.log.Warningf("policy(%s): evict called with nothing tracked", p.kind)
		return "", false
	}

	key := elem.Value.(string)
	p.list.Remove(elem)
	delete(p.elements, key)
	p.clearTTL(key)
	return key, true
}

func (p *queuePolicy) RegisterTTL(key string, d time.Duration) { p.registerTTL(key, d) }
func (p *queuePolicy) ClearTTL(key string)                     { p.clearTTL(key) }
func (p *queuePolicy) Events() <-chan Event                    { return p.eventsChan() }
func (p *queuePolicy) Close()                                  { p.closeTimers() }

func (p *queuePolicy) GetSnapshot() Snapshot {
	order := make([]string, 0, p.list.Len())
	for elem := p.list.Front(); elem != nil; elem = elem.Next() {
		order = append(order, elem.Value.(string))
	}
	return Snapshot{Order: order}
}

func (p *queuePolicy) ApplySnapshot(validKeys map[string]struct{}, snapshot Snapshot) {
	for _, elem := range p.elements {
		p.list.Remove(elem)
	}
	p.elements = make(map[string]*list.Element)

	for _, key := range snapshot.Order {
		if _, ok := validKeys[key]; !ok {
			continue
		}
		p.elements[key] = p.list.PushBack(key)
	}
}
