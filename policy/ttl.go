package policy

import (
	"sync"
	"time"

	"github.com/groc-prog/cache-nest/clock"
)

// ttlTracker is embedded by every concrete policy to provide the shared
// per-key timer bookkeeping of §4.2. It owns nothing about ordering —
// that part is the embedding policy's job — only the timer-to-event
// plumbing, so the six variants don't each reimplement it.
type ttlTracker struct {
	scheduler clock.Scheduler

	mu     sync.Mutex
	timers map[string]clock.Timer

	events chan Event
	once   sync.Once
}

func newTTLTracker(scheduler clock.Scheduler) ttlTracker {
	return ttlTracker{
		scheduler: scheduler,
		timers:    make(map[string]clock.Timer),
		events:    make(chan Event, 64),
	}
}

// registerTTL schedules key to post a ttlExpired event after d, replacing
// any timer already registered for key without posting a ttlCleared for
// the replaced one — it's a reschedule, not a cancellation (§4.3).
func (t *ttlTracker) registerTTL(key string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prior, ok := t.timers[key]; ok {
		prior.Stop()
	}

	t.timers[key] = t.scheduler.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		t.post(Event{Key: key, Expired: true})
	})
}

// clearTTL cancels key's timer, if any, posting ttlCleared when it
// actually prevented a pending fire. Idempotent.
func (t *ttlTracker) clearTTL(key string) {
	t.mu.Lock()
	timer, ok := t.timers[key]
	if ok {
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	if timer.Stop() {
		t.post(Event{Key: key, Expired: false})
	}
}

func (t *ttlTracker) post(ev Event) {
	select {
	case t.events <- ev:
	default:
		// Slow consumer: drop rather than block the timer goroutine.
		// A dropped event is not re-posted: after a dropped ttlExpired the
		// entry stays until it is deleted, invalidated or evicted for space.
	}
}

func (t *ttlTracker) eventsChan() <-chan Event {
	return t.events
}

// closeTimers cancels every outstanding timer without posting events —
// used by Close, where the policy is being torn down entirely.
func (t *ttlTracker) closeTimers() {
	t.mu.Lock()
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = make(map[string]clock.Timer)
	t.mu.Unlock()

	t.once.Do(func() { close(t.events) })
}
