package policy

import (
	"math/rand"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/logger"
)

// randomPolicy backs RR: tracked keys are an unordered set, Hit is a
// no-op, and Evict removes a uniformly random member (§4.2). Snapshot
// carries only the set of keys — there is no order to preserve.
type randomPolicy struct {
	ttlTracker

	log logger.ILogger

	keys  []string
	index map[string]int // key -> position in keys, for O(1) removal
}

func newRandomPolicy(scheduler clock.Scheduler, log logger.ILogger) *randomPolicy {
	return &randomPolicy{
		ttlTracker: newTTLTracker(scheduler),
		log:        log,
		index:      make(map[string]int),
	}
}

func (p *randomPolicy) Kind() Kind { return RR }

func (p *randomPolicy) Track(key string) {
	if _, ok := p.index[key]; ok {
		p.log.Warningf("policy(rr): track called for already-tracked key %q", key)
		return
	}
	p.index[key] = len(p.keys)
	p.keys = append(p.keys, key)
}

func (p *randomPolicy) remove(key string) {
	i, ok := p.index[key]
	if !ok {
		return
	}
	last := len(p.keys) - 1
	p.keys[i] = p.keys[last]
	p.index[p.keys[i]] = i
	p.keys = p.keys[:last]
	delete(p.index, key)
}

func (p *randomPolicy) StopTracking(key string) {
	if _, ok := p.index[key]; !ok {
		p.log.Warningf("policy(rr): stopTracking called for untracked key %q", key)
		return
	}
	p.remove(key)
	p.clearTTL(key)
}

func (p *randomPolicy) Hit(string) {}

func (p *randomPolicy) Evict() (string, bool) {
	if len(p.keys) == 0 {
		p.log.Warningf("policy(rr): evict called with nothing tracked")
		return "", false
	}
	key := p.keys[rand.Intn(len(p.keys))]
	p.remove(key)
	p.clearTTL(key)
	return key, true
}

func (p *randomPolicy) RegisterTTL(key string, d time.Duration) { p.registerTTL(key, d) }
func (p *randomPolicy) ClearTTL(key string)                     { p.clearTTL(key) }
func (p *randomPolicy) Events() <-chan Event                    { return p.eventsChan() }
func (p *randomPolicy) Close()                                  { p.closeTimers() }

func (p *randomPolicy) GetSnapshot() Snapshot {
	order := make([]string, len(p.keys))
	copy(order, p.keys)
	return Snapshot{Order: order}
}

func (p *randomPolicy) ApplySnapshot(validKeys map[string]struct{}, snapshot Snapshot) {
	p.keys = nil
	p.index = make(map[string]int)

	for _, key := range snapshot.Order {
		if _, ok := validKeys[key]; !ok {
			continue
		}
		p.Track(key)
	}
}
