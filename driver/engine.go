// Package driver implements the storage driver of §4.4: the shared
// admission/overflow-eviction loop, invalidation index maintenance, and
// per-policy mutex discipline that both driver variants (memory, disk)
// are built on. The variants differ only in their Store (§4.4's "two
// variants: in-process memory, on-disk"); Engine is where the admission,
// invalidation and concurrency rules live exactly once.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/identifier"
	"github.com/groc-prog/cache-nest/logger"
	"github.com/groc-prog/cache-nest/metrics"
	"github.com/groc-prog/cache-nest/policy"
	"github.com/groc-prog/cache-nest/telemetry"
)

// ttlEventQueueSize bounds each policy's instrumented TTL-event relay
// channel. Expiry events are produced one at a time per policy timer,
// so this only needs enough slack to absorb a burst of near-simultaneous
// expirations without the relay goroutine applying backpressure to the
// policy's own timer callbacks.
const ttlEventQueueSize = 64

// PolicyOrder is the fixed declared order cross-policy overflow eviction
// and lock acquisition walk in, preventing deadlock between two
// concurrent admissions that both spill across policies (§5). The
// memory and disk driver packages reuse it wherever they need to walk
// all six policies in a stable order (snapshot encoding, directory
// layout, recovery).
var PolicyOrder = []policy.Kind{policy.LRU, policy.MRU, policy.LFU, policy.MFU, policy.FIFO, policy.RR}

// Config controls an Engine's admission behavior. It is orthogonal to
// where bytes ultimately live (that's Store's job).
type Config struct {
	Name            string // driver label attached to logs/metrics, e.g. "memory" or "fileSystem"
	MaxSize         int64
	EvictFromOthers bool
}

// Engine is the storage driver shared between the memory and disk
// variants: it owns the six policies, their mutexes, and the
// invalidation index, and drives admission/overflow eviction and
// invalidation exactly as §4.4–§4.8 specify. A concrete driver package
// supplies the Store and calls NewEngine.
type Engine struct {
	cfg   Config
	store Store
	log   logger.ILogger
	tel   *telemetry.EngineMetrics

	mu       [6]sync.Mutex
	policies map[policy.Kind]policy.Policy

	// ttlEvents instruments each policy's TTL-event channel (queue depth,
	// send/receive throughput, expiry-to-processing latency) when tel
	// carries a Registry. Built once at construction time so watchTTL's
	// hot path never has to check for a nil monitor per event.
	ttlEvents map[policy.Kind]*metrics.ChannelMonitor[policy.Event]

	// invalidation[kind][invKey] = set of cache keys registered under it.
	invalidation map[policy.Kind]map[string]map[string]struct{}
	// keyInvalidators[kind][cacheKey] = the invalidation keys that key is
	// registered under, so removal can walk only the relevant sets.
	keyInvalidators map[policy.Kind]map[string][]string

	closeOnce sync.Once
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewEngine builds an Engine over store with a fresh Policy instance per
// kind, scheduled on scheduler. Call Init before serving traffic.
func NewEngine(cfg Config, store Store, scheduler clock.Scheduler, log logger.ILogger, tel *telemetry.EngineMetrics) *Engine {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:             cfg,
		store:           store,
		log:             log,
		tel:             tel,
		policies:        make(map[policy.Kind]policy.Policy, len(PolicyOrder)),
		invalidation:    make(map[policy.Kind]map[string]map[string]struct{}, len(PolicyOrder)),
		keyInvalidators: make(map[policy.Kind]map[string][]string, len(PolicyOrder)),
		done:            make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}

	var reg *metrics.Registry
	if tel != nil {
		reg = tel.Registry()
	}
	if reg != nil {
		e.ttlEvents = make(map[policy.Kind]*metrics.ChannelMonitor[policy.Event], len(PolicyOrder))
	}

	for _, kind := range PolicyOrder {
		e.policies[kind] = policy.New(kind, scheduler, log)
		e.invalidation[kind] = make(map[string]map[string]struct{})
		e.keyInvalidators[kind] = make(map[string][]string)

		if reg != nil {
			e.ttlEvents[kind] = metrics.NewChannelMonitor[policy.Event](
				reg, fmt.Sprintf("%s_ttl_events_%s", cfg.Name, kind), ttlEventQueueSize,
			)
		}
	}

	return e
}

func (e *Engine) mutex(kind policy.Kind) *sync.Mutex { return &e.mu[kind] }

// lockForAdmission locks the mutexes Set needs: just kind's when
// admission can't spill across policies, or every policy's in
// PolicyOrder when it can, so concurrent Sets never acquire the same
// pair of mutexes in opposite orders. It returns the matching unlock
// function.
func (e *Engine) lockForAdmission(kind policy.Kind) func() {
	if !e.cfg.EvictFromOthers {
		mu := e.mutex(kind)
		mu.Lock()
		return mu.Unlock
	}

	for _, k := range PolicyOrder {
		e.mutex(k).Lock()
	}
	return func() {
		for i := len(PolicyOrder) - 1; i >= 0; i-- {
			e.mutex(PolicyOrder[i]).Unlock()
		}
	}
}

// Init subscribes every policy's TTL event channel so an expiry removes
// the entry from the table (§4.4's "subscribe each policy's ttlExpired
// to remove the entry from the table"). Recovery (replaying a snapshot
// or scanning disk files) is the concrete driver's job, and both
// variants finish it before calling Init.
func (e *Engine) Init() {
	for kind, p := range e.policies {
		if mon, ok := e.ttlEvents[kind]; ok {
			go e.relayTTL(p, mon)
		}
		go e.watchTTL(kind, p)
	}
}

// relayTTL forwards p's raw TTL events into mon so watchTTL's consumption
// of them is instrumented (queue depth, throughput, expiry-to-processing
// latency), without policy.Policy itself depending on metrics.
func (e *Engine) relayTTL(p policy.Policy, mon *metrics.ChannelMonitor[policy.Event]) {
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				mon.Close()
				return
			}
			if err := mon.Send(e.ctx, ev); err != nil {
				return
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) watchTTL(kind policy.Kind, p policy.Policy) {
	mon, instrumented := e.ttlEvents[kind]

	for {
		var ev policy.Event
		var ok bool

		if instrumented {
			var err error
			ev, err = mon.Receive(e.ctx)
			ok = err == nil
		} else {
			select {
			case ev, ok = <-p.Events():
			case <-e.done:
				return
			}
		}

		if !ok {
			return
		}
		if ev.Expired {
			e.expire(kind, ev.Key)
		}
		// ttlCleared: nothing to do, the cancelling caller already
		// knows why the timer was cancelled.
	}
}

func (e *Engine) expire(kind policy.Kind, key string) {
	mu := e.mutex(kind)
	mu.Lock()
	defer mu.Unlock()

	// The key may already be gone (raced with a manual delete); evict
	// is a no-op in that case since stopTracking already ran.
	e.policies[kind].StopTracking(key)
	_ = e.store.Remove(kind, key)
	e.unlinkInvalidation(kind, key)

	if e.tel != nil {
		e.tel.Eviction(e.cfg.Name, kind.String(), key, telemetry.EvictionTTL)
	}
	e.log.Infof("driver(%s): key %q expired under policy %s", e.cfg.Name, key, kind)
}

// Close stops the TTL watcher goroutines and every policy's timers.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.cancel()
		for _, p := range e.policies {
			p.Close()
		}
	})
}

// Policy returns the Policy instance for kind, for callers (snapshot
// writers, recovery) that need direct access to GetSnapshot/ApplySnapshot.
func (e *Engine) Policy(kind policy.Kind) policy.Policy { return e.policies[kind] }

// Get implements §4.4's get: hash, look up, record a hit or a miss, and
// on hit mutate atime/hits and persist the change.
func (e *Engine) Get(id identifier.Identifier, kind policy.Kind) (entry.Entry, error) {
	key := identifier.Digest(id, identifier.KindCache)

	mu := e.mutex(kind)
	mu.Lock()
	defer mu.Unlock()

	loaded, ok, err := e.store.Load(kind, key)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("driver(%s): loading %q: %w", e.cfg.Name, key, err)
	}
	if !ok {
		if e.tel != nil {
			e.tel.Lookup(e.cfg.Name, kind.String(), key, false)
		}
		return entry.Entry{}, ErrNotFound
	}

	e.policies[kind].Hit(key)
	loaded.Hits++
	loaded.ATime = e.nowForStore()

	if err := e.store.Save(kind, key, loaded); err != nil {
		return entry.Entry{}, fmt.Errorf("driver(%s): persisting hit on %q: %w", e.cfg.Name, key, err)
	}

	if e.tel != nil {
		e.tel.Lookup(e.cfg.Name, kind.String(), key, true)
	}

	return loaded, nil
}

// nowForStore exists so a future clock-driven atime could be injected;
// entries already carry their own CTime from construction, so Get only
// needs "now" for ATime refresh.
func (e *Engine) nowForStore() time.Time { return time.Now() }

// Set implements §4.4's set: hash, existence/force check, build the
// entry's bookkeeping, run admission, then track/write/link under the
// target policy's mutex. When admission may spill across policies
// (evictFromOthers), every policy's mutex is acquired up front in the
// fixed declared order (§5) — not just the target's — so two concurrent
// Sets targeting different policies can never form a lock cycle.
func (e *Engine) Set(id identifier.Identifier, kind policy.Kind, rec entry.Entry, force bool) (bool, error) {
	key := identifier.Digest(id, identifier.KindCache)
	rec.Identifier = id

	unlock := e.lockForAdmission(kind)
	defer unlock()

	_, exists, err := e.store.Load(kind, key)
	if err != nil {
		return false, fmt.Errorf("driver(%s): checking existence of %q: %w", e.cfg.Name, key, err)
	}
	if exists {
		if !force {
			return false, nil
		}
		e.policies[kind].StopTracking(key)
		e.unlinkInvalidation(kind, key)
		_ = e.store.Remove(kind, key)
	}

	size, err := e.store.Size(rec)
	if err != nil {
		return false, fmt.Errorf("driver(%s): sizing entry for %q: %w", e.cfg.Name, key, err)
	}
	if size > e.cfg.MaxSize {
		return false, ErrCacheTooBig
	}

	if err := e.admit(kind, size); err != nil {
		return false, err
	}

	e.policies[kind].Track(key)
	if rec.Options.TTL > 0 {
		e.policies[kind].RegisterTTL(key, rec.Options.TTL)
	}
	if err := e.store.Save(kind, key, rec); err != nil {
		e.policies[kind].StopTracking(key)
		return false, fmt.Errorf("driver(%s): persisting %q: %w", e.cfg.Name, key, err)
	}
	e.linkInvalidation(kind, key, rec.Options.InvalidatedBy)

	if e.tel != nil {
		e.tel.CacheCreated(e.cfg.Name, kind.String(), key)
	}

	return true, nil
}

// admit runs §4.5's admission loop: free enough space for an entry of
// size bytes under kind, evicting from kind first and, if
// evictFromOthers, from the remaining policies in declared order.
// currentCacheSize is recomputed every iteration rather than captured
// once, per §9's correction of the source's stale-size bug.
func (e *Engine) admit(kind policy.Kind, size int64) error {
	if e.currentCacheSize()+size <= e.cfg.MaxSize {
		return nil
	}

	for {
		if e.currentCacheSize()+size <= e.cfg.MaxSize {
			return nil
		}

		if e.evictOneFrom(kind) {
			continue
		}

		if !e.cfg.EvictFromOthers {
			return ErrNoCachesToEvict
		}

		freedAny := false
		for _, other := range PolicyOrder {
			if other == kind {
				continue
			}
			if e.currentCacheSize()+size <= e.cfg.MaxSize {
				return nil
			}
			if e.evictOneFrom(other) {
				freedAny = true
			}
		}
		if !freedAny {
			return ErrNoCachesToEvict
		}
	}
}

// evictOneFrom evicts a single victim from kind. The caller must already
// hold kind's mutex — Set acquires every policy's mutex up front via
// lockForAdmission whenever admission is allowed to reach this far.
func (e *Engine) evictOneFrom(kind policy.Kind) bool {
	key, ok := e.policies[kind].Evict()
	if !ok {
		return false
	}
	_ = e.store.Remove(kind, key)
	e.unlinkInvalidation(kind, key)
	if e.tel != nil {
		e.tel.Eviction(e.cfg.Name, kind.String(), key, telemetry.EvictionSizeLimit)
	}
	return true
}

// currentCacheSize sums serialized entry bytes across all policies
// (§4.5: "sum of serialized entries across all policies").
func (e *Engine) currentCacheSize() int64 {
	var total int64
	for _, kind := range PolicyOrder {
		_, bytes, err := e.store.ResourceUsage(kind)
		if err != nil {
			e.log.Warningf("driver(%s): resourceUsage(%s) failed while sizing admission: %v", e.cfg.Name, kind, err)
			continue
		}
		total += bytes
	}
	return total
}

// Delete implements §4.4's delete.
func (e *Engine) Delete(id identifier.Identifier, kind policy.Kind) error {
	key := identifier.Digest(id, identifier.KindCache)

	mu := e.mutex(kind)
	mu.Lock()
	defer mu.Unlock()

	_, ok, err := e.store.Load(kind, key)
	if err != nil {
		return fmt.Errorf("driver(%s): loading %q: %w", e.cfg.Name, key, err)
	}
	if !ok {
		return ErrNotFound
	}

	e.policies[kind].StopTracking(key)
	if err := e.store.Remove(kind, key); err != nil {
		return fmt.Errorf("driver(%s): removing %q: %w", e.cfg.Name, key, err)
	}
	e.unlinkInvalidation(kind, key)

	if e.tel != nil {
		e.tel.CacheDeleted(e.cfg.Name, kind.String(), key)
	}
	return nil
}

// Invalidate implements §4.4's invalidate: for each identifier, hash it
// as an invalidation key and remove every cache key registered under it.
func (e *Engine) Invalidate(ids []identifier.Identifier, kind policy.Kind) error {
	mu := e.mutex(kind)
	mu.Lock()
	defer mu.Unlock()

	for _, id := range ids {
		invKey := identifier.Digest(id, identifier.KindInvalidation)
		members := e.invalidation[kind][invKey]
		for cacheKey := range members {
			e.policies[kind].StopTracking(cacheKey)
			_ = e.store.Remove(kind, cacheKey)
			e.unlinkInvalidation(kind, cacheKey)

			if e.tel != nil {
				e.tel.Eviction(e.cfg.Name, kind.String(), cacheKey, telemetry.EvictionInvalidation)
			}
		}
	}

	return nil
}

// linkInvalidation adds key to the invalidation set of every identifier
// it registers under (§4.8's set path).
func (e *Engine) linkInvalidation(kind policy.Kind, key string, invalidatedBy []identifier.Identifier) {
	if len(invalidatedBy) == 0 {
		return
	}

	invKeys := make([]string, 0, len(invalidatedBy))
	for _, id := range invalidatedBy {
		invKeys = append(invKeys, identifier.Digest(id, identifier.KindInvalidation))
	}

	e.linkInvalidationKeys(kind, key, invKeys)
}

// linkInvalidationKeys is linkInvalidation's digest-already-computed
// core, shared with RestoreEntry: recovery only ever has the
// invalidation-key digests a snapshot/disk record carried, never the
// original identifiers they were hashed from.
func (e *Engine) linkInvalidationKeys(kind policy.Kind, key string, invKeys []string) {
	if len(invKeys) == 0 {
		return
	}

	for _, invKey := range invKeys {
		set, ok := e.invalidation[kind][invKey]
		if !ok {
			set = make(map[string]struct{})
			e.invalidation[kind][invKey] = set
		}
		set[key] = struct{}{}
	}

	e.keyInvalidators[kind][key] = invKeys
}

// unlinkInvalidation removes key from every invalidation set it is
// registered under, dropping empty sets (§4.8's eviction path).
func (e *Engine) unlinkInvalidation(kind policy.Kind, key string) {
	invKeys, ok := e.keyInvalidators[kind][key]
	if !ok {
		return
	}
	delete(e.keyInvalidators[kind], key)

	for _, invKey := range invKeys {
		set := e.invalidation[kind][invKey]
		delete(set, key)
		if len(set) == 0 {
			delete(e.invalidation[kind], invKey)
		}
	}
}

// RestoreEntry finishes restoring an entry a driver's recovery path has
// already placed in its Store and tracked via RestorePolicySnapshot: it
// registers the entry's remaining TTL (if any) and relinks the
// invalidation keys it was serialized with. It deliberately does not
// call Track itself — RestorePolicySnapshot must run first for kind so
// every surviving key is already tracked in the exact order/counts its
// policy snapshot describes; calling Track again here would log a
// spurious "already tracked" warning for every recovered key. It never
// runs admission either — the entry already occupies durable storage,
// so admitting it again would double-count its size or, worse, evict
// it to make room for itself. Callers must finish all
// RestorePolicySnapshot/RestoreEntry calls before calling Init, so the
// TTL-expiry watcher isn't racing recovery.
func (e *Engine) RestoreEntry(kind policy.Kind, key string, invKeys []string, remainingTTL time.Duration) {
	mu := e.mutex(kind)
	mu.Lock()
	defer mu.Unlock()

	if remainingTTL > 0 {
		e.policies[kind].RegisterTTL(key, remainingTTL)
	}
	e.linkInvalidationKeys(kind, key, invKeys)
}

// RestorePolicySnapshot replays kind's dumped ordering state via the
// policy's own ApplySnapshot — which Tracks every surviving key in the
// recorded order (and, for LFU/MFU, replays its hit count) — discarding
// anything not in validKeys. Call this before RestoreEntry for the same
// policy (§4.7).
func (e *Engine) RestorePolicySnapshot(kind policy.Kind, validKeys map[string]struct{}, snap policy.Snapshot) {
	mu := e.mutex(kind)
	mu.Lock()
	defer mu.Unlock()

	e.policies[kind].ApplySnapshot(validKeys, snap)
}

// ResourceUsage implements §4.4's resourceUsage.
func (e *Engine) ResourceUsage() (ResourceUsage, error) {
	usage := ResourceUsage{MaxSize: e.cfg.MaxSize, Policies: make([]PolicyUsage, 0, len(PolicyOrder))}

	for _, kind := range PolicyOrder {
		mu := e.mutex(kind)
		mu.Lock()
		count, bytes, err := e.store.ResourceUsage(kind)
		mu.Unlock()
		if err != nil {
			return ResourceUsage{}, fmt.Errorf("driver(%s): resourceUsage(%s): %w", e.cfg.Name, kind, err)
		}

		fraction := 0.0
		if usage.MaxSize > 0 {
			fraction = float64(bytes) / float64(usage.MaxSize)
		}

		usage.Policies = append(usage.Policies, PolicyUsage{
			Policy:   kind,
			Entries:  count,
			Bytes:    bytes,
			Fraction: fraction,
		})
		usage.TotalBytes += bytes
		usage.TotalEntries += count
	}

	return usage, nil
}
