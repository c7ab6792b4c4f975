package disk

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/driver"
	"github.com/groc-prog/cache-nest/logger"
	"github.com/groc-prog/cache-nest/policy"
	"github.com/groc-prog/cache-nest/telemetry"
	"github.com/groc-prog/cache-nest/workerpool"
)

// Driver is the on-disk storage driver variant of §4.4/§4.6: an Engine
// over a file-backed Store. Unlike the memory variant it has no
// separate snapshot blob — the cache files themselves are the durable
// state — so Init's recovery walks the on-disk layout directly instead
// of decoding a snapshot.Blob.
type Driver struct {
	*driver.Engine

	mountPath string
	store     *Store
	scheduler clock.Scheduler
	log       logger.ILogger
}

// New builds a disk Driver rooted at mountPath. Call Init before
// serving traffic.
func New(cfg driver.Config, mountPath string, scheduler clock.Scheduler, log logger.ILogger, tel *telemetry.EngineMetrics) *Driver {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if scheduler == nil {
		scheduler = clock.System{}
	}

	store := NewStore(mountPath, log)
	engine := driver.NewEngine(cfg, store, scheduler, log, tel)

	return &Driver{
		Engine:    engine,
		mountPath: mountPath,
		store:     store,
		scheduler: scheduler,
		log:       log,
	}
}

// Init ensures the on-disk layout exists, recovers every policy's
// tracked keys and TTLs from its subdirectory (§4.6's init step,
// parallelized across the six independent subdirectories with the
// teacher's workerpool since they share nothing but the Engine's
// per-policy mutexes), then starts the Engine's TTL watchers.
func (d *Driver) Init() error {
	if err := d.store.EnsureLayout(); err != nil {
		return err
	}

	var mu sync.Mutex
	var recoverErrs []error

	pool := workerpool.New(context.Background(), func(_ context.Context, kind policy.Kind) {
		if err := d.recoverPolicy(kind); err != nil {
			mu.Lock()
			recoverErrs = append(recoverErrs, err)
			mu.Unlock()
		}
	}, workerpool.WithWorkers[policy.Kind](len(driver.PolicyOrder)))

	for _, kind := range driver.PolicyOrder {
		pool.Submit(kind)
	}
	pool.Shutdown()

	for _, err := range recoverErrs {
		d.log.Warningf("driver(fileSystem): recovery: %v", err)
	}

	d.Engine.Init()
	return nil
}

// Close stops the Engine's TTL watchers. There is no snapshot writer
// to stop — the cache files are already durable on every Set/Delete.
func (d *Driver) Close() {
	d.Engine.Close()
}

// recovered is one surviving cache file's bookkeeping, gathered during
// the directory scan so the policy can be restored in one
// RestorePolicySnapshot call followed by one RestoreEntry per key.
type recovered struct {
	key       string
	hits      uint64
	invKeys   []string
	remaining time.Duration
}

// recoverPolicy implements §4.6's per-policy init step: drop cache
// files whose ttl.dat expiration has already passed, then track every
// surviving file in the Engine with its remaining TTL re-registered as
// a relative timer and its invalidation links rebuilt straight from the
// entry's own invalidatedBy digests — not from
// invalidation-identifiers.dat, which Store keeps as a convenience
// mirror but which could itself be stale if a prior process crashed
// between writing a cache file and its index update.
func (d *Driver) recoverPolicy(kind policy.Kind) error {
	now := d.scheduler.Now()

	ttl, err := d.store.readTTLIndex(kind)
	if err != nil {
		return err
	}

	expired := make(map[string]struct{})
	for key, exp := range ttl {
		if exp.After(now) {
			continue
		}
		expired[key] = struct{}{}
		if err := d.store.Remove(kind, key); err != nil {
			d.log.Warningf("driver(fileSystem): recovery: removing expired key %q under %s: %v", key, kind, err)
		}
	}

	dir := policyDir(d.mountPath, kind)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	entries := make([]recovered, 0, len(files))
	for _, de := range files {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if _, reserved := reservedFileNames[name]; reserved {
			continue
		}
		key, ok := strings.CutSuffix(name, entryFileExt)
		if !ok {
			continue
		}
		if _, gone := expired[key]; gone {
			continue
		}

		e, ok, err := d.store.Load(kind, key)
		if err != nil {
			d.log.Warningf("driver(fileSystem): recovery: loading %q under %s: %v", key, kind, err)
			continue
		}
		if !ok {
			continue
		}

		var remaining time.Duration
		if e.Options.TTL > 0 {
			remaining = e.CTime.Add(e.Options.TTL).Sub(now)
			if remaining < 0 {
				remaining = 0
			}
		}

		rec := driver.ToRecord(key, e)
		entries = append(entries, recovered{
			key:       key,
			hits:      e.Hits,
			invKeys:   rec.InvalidatedBy.Members(),
			remaining: remaining,
		})
	}

	validKeys := make(map[string]struct{}, len(entries))
	order := make([]string, 0, len(entries))
	counts := make(map[string]int, len(entries))
	for _, r := range entries {
		validKeys[r.key] = struct{}{}
		order = append(order, r.key)
		counts[r.key] = int(r.hits)
	}

	d.Engine.RestorePolicySnapshot(kind, validKeys, policy.Snapshot{Order: order, Counts: counts})

	for _, r := range entries {
		d.Engine.RestoreEntry(kind, r.key, r.invKeys, r.remaining)
	}

	return nil
}
