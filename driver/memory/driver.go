package memory

import (
	"errors"
	"os"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/driver"
	"github.com/groc-prog/cache-nest/logger"
	"github.com/groc-prog/cache-nest/snapshot"
	"github.com/groc-prog/cache-nest/telemetry"
)

// RecoveryConfig mirrors config.MemoryRecovery, kept free of koanf tags
// so this package never has to import the config loader.
type RecoveryConfig struct {
	Enabled          bool
	SnapshotFilePath string
	SnapshotInterval time.Duration
}

// Driver is the memory storage driver variant of §4.4: an Engine over
// Store, plus the periodic snapshot Writer and startup replay §4.7
// describes. The disk variant skips this — its durability already
// comes from the files themselves.
type Driver struct {
	*driver.Engine

	store     *Store
	recovery  RecoveryConfig
	scheduler clock.Scheduler
	log       logger.ILogger
	writer    *snapshot.Writer
}

// New builds a memory Driver over a fresh Store. Call Init before
// serving traffic.
func New(cfg driver.Config, recovery RecoveryConfig, scheduler clock.Scheduler, log logger.ILogger, tel *telemetry.EngineMetrics) *Driver {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if scheduler == nil {
		scheduler = clock.System{}
	}

	store := NewStore()
	engine := driver.NewEngine(cfg, store, scheduler, log, tel)

	return &Driver{
		Engine:    engine,
		store:     store,
		recovery:  recovery,
		scheduler: scheduler,
		log:       log,
	}
}

// Init replays a prior snapshot (if recovery is enabled and a snapshot
// file exists), starts the Engine's TTL-expiry watchers, and starts the
// periodic snapshot Writer. A replay failure is logged and swallowed —
// SnapshotReadFailed never aborts startup (§7) — the driver simply
// begins empty.
func (d *Driver) Init() error {
	if d.recovery.Enabled {
		if err := d.replay(); err != nil {
			d.log.Warningf("driver(memory): snapshot replay from %s failed, starting empty: %v", d.recovery.SnapshotFilePath, err)
		}
	}

	d.Engine.Init()

	if d.recovery.Enabled {
		d.writer = snapshot.NewWriter(d.recovery.SnapshotFilePath, d.recovery.SnapshotInterval, d.buildBlob, d.scheduler, d.log)
		d.writer.Start()
	}

	return nil
}

// Close stops the snapshot writer before tearing down the Engine, so a
// write in flight finishes against still-valid policy state.
func (d *Driver) Close() {
	if d.writer != nil {
		d.writer.Stop()
	}
	d.Engine.Close()
}

// WriteSnapshotNow forces an out-of-cadence snapshot write, bypassing
// the writer's interval timer. Exposed for callers that want a
// synchronous checkpoint (e.g. before a planned shutdown) instead of
// waiting for the next tick; it is a no-op returning nil if recovery is
// disabled, since there is then no configured snapshot path to write to.
func (d *Driver) WriteSnapshotNow() error {
	if d.writer == nil {
		return nil
	}
	return d.writer.WriteOnce()
}

// replay decodes the configured snapshot file and restores every
// surviving entry (§4.7's read path): entries whose TTL has already
// elapsed are dropped by snapshot.Replay before this ever sees them.
func (d *Driver) replay() error {
	blob, err := snapshot.ReadExisting(d.recovery.SnapshotFilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	now := d.scheduler.Now()
	for _, cache := range snapshot.Replay(blob, now) {
		validKeys := make(map[string]struct{}, len(cache.Entries))

		for _, rec := range cache.Entries {
			e := driver.FromRecord(rec)
			if err := d.store.Save(cache.Policy, rec.Key, e); err != nil {
				return err
			}
			validKeys[rec.Key] = struct{}{}
		}

		d.Engine.RestorePolicySnapshot(cache.Policy, validKeys, cache.Snapshot)

		for _, rec := range cache.Entries {
			if _, ok := validKeys[rec.Key]; !ok {
				continue
			}

			var remaining time.Duration
			if rec.TTL > 0 {
				remaining = rec.CTime.Add(rec.TTL).Sub(now)
				if remaining < 0 {
					remaining = 0
				}
			}

			d.Engine.RestoreEntry(cache.Policy, rec.Key, rec.InvalidatedBy.Members(), remaining)
		}
	}

	return nil
}

// buildBlob is the snapshot.Source the Writer polls on every tick: the
// current entries of every policy plus that policy's GetSnapshot
// ordering dump (§4.7's write cadence).
func (d *Driver) buildBlob() snapshot.Blob {
	caches := make([]snapshot.CacheRecord, 0, len(driver.PolicyOrder))

	for _, kind := range driver.PolicyOrder {
		entries := d.store.Snapshot(kind)
		records := make([]snapshot.EntryRecord, 0, len(entries))
		for key, e := range entries {
			records = append(records, driver.ToRecord(key, e))
		}

		snap := d.Engine.Policy(kind).GetSnapshot()
		caches = append(caches, snapshot.BuildCacheRecord(kind.String(), kind, records, snap))
	}

	return snapshot.Blob{Caches: caches}
}
