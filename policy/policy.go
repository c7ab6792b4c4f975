// Package policy implements the six interchangeable replacement policies
// of §4.2 behind one shared interface, modeled as a closed sum type
// (Kind) over concrete implementations rather than virtual dispatch on an
// abstract base, per the design note: the set of variants is fixed and
// the driver branches on it rarely.
package policy

import (
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/logger"
)

// Kind identifies one of the six replacement policies.
type Kind int

const (
	LRU Kind = iota
	MRU
	LFU
	MFU
	FIFO
	RR
)

// String returns the lowercase variant name, used as the subdirectory
// name in the disk driver's layout (§4.6) and as the "policy" label
// attached to logs and metrics (§6).
func (k Kind) String() string {
	switch k {
	case LRU:
		return "lru"
	case MRU:
		return "mru"
	case LFU:
		return "lfu"
	case MFU:
		return "mfu"
	case FIFO:
		return "fifo"
	case RR:
		return "rr"
	default:
		return "unknown"
	}
}

// Event is posted on a policy's Events channel when a key's TTL fires or
// is cancelled before firing (§4.2).
type Event struct {
	Key     string
	Expired bool // true: ttlExpired: false: ttlCleared
}

// Snapshot is the opaque, serializable dump of a policy's internal
// ordering state (§4.2 "keyOrder", §4.7). Order lists tracked keys in
// the order Track must be replayed in to reconstruct identical ordering
// and tie-break behavior; Counts carries per-key hit counts for the
// frequency-based policies (LFU/MFU) and is nil/empty otherwise.
type Snapshot struct {
	Order  []string
	Counts map[string]int
}

// Policy is the uniform interface every replacement policy conforms to
// (§4.2). It is not safe for concurrent use by itself — the driver's
// per-policy mutex (§5) is what makes it safe.
type Policy interface {
	Kind() Kind

	// Track starts tracking key. Re-tracking an already-tracked key is a
	// no-op, logged at warning level.
	Track(key string)
	// StopTracking removes key from the ordering structures and cancels
	// any TTL registered for it. Stopping an untracked key is a no-op.
	StopTracking(key string)
	// Hit records an access to key, with policy-specific effects (§4.2's
	// per-variant table). Hitting an untracked key is a no-op.
	Hit(key string)
	// Evict chooses and removes the next victim per the policy's rule,
	// clearing its TTL. It returns ok=false when nothing is tracked.
	Evict() (key string, ok bool)

	// RegisterTTL schedules key to fire a ttlExpired event after d
	// elapses, cancelling any timer already registered for key.
	RegisterTTL(key string, d time.Duration)
	// ClearTTL cancels key's TTL timer, if any, firing ttlCleared.
	// Idempotent.
	ClearTTL(key string)
	// Events returns the channel ttlExpired/ttlCleared events are posted
	// to. The driver subscribes to it in Init (§4.4).
	Events() <-chan Event

	// GetSnapshot dumps the current ordering state.
	GetSnapshot() Snapshot
	// ApplySnapshot discards the policy's current state and replays
	// snapshot, restricted to the keys present in validKeys.
	ApplySnapshot(validKeys map[string]struct{}, snapshot Snapshot)

	// Close stops all outstanding TTL timers and releases the events
	// channel. Call once, when the owning driver shuts down.
	Close()
}

// New constructs the Policy implementation for kind.
func New(kind Kind, scheduler clock.Scheduler, log logger.ILogger) Policy {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	switch kind {
	case LRU:
		return newQueuePolicy(LRU, scheduler, log, true, true)
	case MRU:
		return newQueuePolicy(MRU, scheduler, log, false, true)
	case FIFO:
		return newQueuePolicy(FIFO, scheduler, log, true, false)
	case LFU:
		return newFrequencyPolicy(LFU, scheduler, log, true)
	case MFU:
		return newFrequencyPolicy(MFU, scheduler, log, false)
	case RR:
		return newRandomPolicy(scheduler, log)
	default:
		panic("policy: unknown kind")
	}
}
