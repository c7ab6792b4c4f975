package memory_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/groc-prog/cache-nest/clock"
	"github.com/groc-prog/cache-nest/driver"
	"github.com/groc-prog/cache-nest/driver/memory"
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/identifier"
	"github.com/groc-prog/cache-nest/policy"
)

func TestDriver_SetGetDelete(t *testing.T) {
	t.Parallel()

	cfg := driver.Config{Name: "memory", MaxSize: 1 << 20}
	d := memory.New(cfg, memory.RecoveryConfig{}, clock.System{}, nil, nil)
	if err := d.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(d.Close)

	id := identifier.Str("alpha")
	rec := entry.New(id, []byte("hello"), time.Now())

	ok, err := d.Set(id, policy.LRU, rec, false)
	if err != nil || !ok {
		t.Fatalf("Set() = %v, %v", ok, err)
	}

	got, err := d.Get(id, policy.LRU)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != "hello" {
		t.Fatalf("Get().Data = %q, want %q", got.Data, "hello")
	}

	if err := d.Delete(id, policy.LRU); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := d.Get(id, policy.LRU); err != driver.ErrNotFound {
		t.Fatalf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestDriver_RecoveryDisabledStartsEmpty(t *testing.T) {
	t.Parallel()

	cfg := driver.Config{Name: "memory", MaxSize: 1 << 20}
	d := memory.New(cfg, memory.RecoveryConfig{Enabled: false}, clock.System{}, nil, nil)
	if err := d.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(d.Close)

	usage, err := d.ResourceUsage()
	if err != nil {
		t.Fatalf("ResourceUsage() error = %v", err)
	}
	if usage.TotalEntries != 0 {
		t.Fatalf("TotalEntries = %d, want 0", usage.TotalEntries)
	}
}

func TestDriver_SnapshotWriteAndRecover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.dat")

	cfg := driver.Config{Name: "memory", MaxSize: 1 << 20}
	recovery := memory.RecoveryConfig{
		Enabled:          true,
		SnapshotFilePath: path,
		SnapshotInterval: time.Hour, // never fires on its own during the test
	}

	first := memory.New(cfg, recovery, clock.System{}, nil, nil)
	if err := first.Init(); err != nil {
		t.Fatalf("first Init() error = %v", err)
	}

	id := identifier.Str("alpha")
	rec := entry.New(id, []byte("persisted"), time.Now())
	if ok, err := first.Set(id, policy.LFU, rec, false); err != nil || !ok {
		t.Fatalf("Set() = %v, %v", ok, err)
	}
	// Force a hit so the LFU count survives the round trip non-trivially.
	if _, err := first.Get(id, policy.LFU); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if err := first.WriteSnapshotNow(); err != nil {
		t.Fatalf("WriteSnapshotNow() error = %v", err)
	}
	first.Close()

	second := memory.New(cfg, recovery, clock.System{}, nil, nil)
	if err := second.Init(); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	t.Cleanup(second.Close)

	got, err := second.Get(id, policy.LFU)
	if err != nil {
		t.Fatalf("Get() after recovery error = %v", err)
	}
	if string(got.Data) != "persisted" {
		t.Fatalf("Get().Data = %q, want %q", got.Data, "persisted")
	}
	// The recovered entry should already carry its prior hit, plus the
	// one Get above just recorded.
	if got.Hits < 1 {
		t.Fatalf("Get().Hits = %d, want >= 1", got.Hits)
	}
}

func TestDriver_RecoveryDropsExpiredEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.dat")

	cfg := driver.Config{Name: "memory", MaxSize: 1 << 20}
	recovery := memory.RecoveryConfig{
		Enabled:          true,
		SnapshotFilePath: path,
		SnapshotInterval: time.Hour,
	}

	first := memory.New(cfg, recovery, clock.System{}, nil, nil)
	if err := first.Init(); err != nil {
		t.Fatalf("first Init() error = %v", err)
	}

	id := identifier.Str("short-lived")
	rec := entry.New(id, []byte("v"), time.Now().Add(-time.Hour), entry.WithTTL(time.Millisecond))
	if ok, err := first.Set(id, policy.LRU, rec, false); err != nil || !ok {
		t.Fatalf("Set() = %v, %v", ok, err)
	}

	if err := first.WriteSnapshotNow(); err != nil {
		t.Fatalf("WriteSnapshotNow() error = %v", err)
	}
	first.Close()

	second := memory.New(cfg, recovery, clock.System{}, nil, nil)
	if err := second.Init(); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	t.Cleanup(second.Close)

	if _, err := second.Get(id, policy.LRU); err != driver.ErrNotFound {
		t.Fatalf("Get() for expired entry error = %v, want ErrNotFound", err)
	}
}
