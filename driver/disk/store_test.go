package disk_test

import (
	"testing"
	"time"

	"github.com/groc-prog/cache-nest/driver"
	"github.com/groc-prog/cache-nest/driver/disk"
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/identifier"
	"github.com/groc-prog/cache-nest/policy"
)

func newTestStore(t *testing.T) *disk.Store {
	t.Helper()
	s := disk.NewStore(t.TempDir(), nil)
	if err := s.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error = %v", err)
	}
	return s
}

func TestStore_SaveLoadRemove(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	e := entry.New(identifier.Str("alpha"), []byte("v"), time.Now())

	if err := s.Save(policy.LRU, "k1", e); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(policy.LRU, "k1")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v, %v", got, ok, err)
	}
	if string(got.Data) != "v" {
		t.Fatalf("Load().Data = %q, want %q", got.Data, "v")
	}

	if err := s.Remove(policy.LRU, "k1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok, _ := s.Load(policy.LRU, "k1"); ok {
		t.Fatalf("Load() after Remove() ok = true, want false")
	}
}

func TestStore_LoadAbsentKey(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, ok, err := s.Load(policy.LRU, "missing")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if ok {
		t.Fatalf("Load() ok = true, want false")
	}
}

func TestStore_RemoveAbsentKeyIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Remove(policy.LRU, "missing"); err != nil {
		t.Fatalf("Remove() of absent key error = %v, want nil", err)
	}
}

func TestStore_ResourceUsageExcludesReservedFiles(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	count, bytes, err := s.ResourceUsage(policy.LRU)
	if err != nil {
		t.Fatalf("ResourceUsage() error = %v", err)
	}
	if count != 0 || bytes != 0 {
		t.Fatalf("ResourceUsage() on a freshly laid-out directory = %d, %d, want 0, 0 (ttl.dat/invalidation-identifiers.dat must not count)", count, bytes)
	}

	e := entry.New(identifier.Str("a"), []byte("abcd"), time.Now())
	if err := s.Save(policy.LRU, "a", e); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	count, bytes, err = s.ResourceUsage(policy.LRU)
	if err != nil {
		t.Fatalf("ResourceUsage() error = %v", err)
	}
	if count != 1 || bytes <= 0 {
		t.Fatalf("ResourceUsage() = %d, %d, want 1, >0", count, bytes)
	}
}

func TestStore_ResourceUsageIsolatedPerPolicy(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	e := entry.New(identifier.Str("a"), []byte("abcd"), time.Now())
	if err := s.Save(policy.LRU, "a", e); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	lfuCount, _, err := s.ResourceUsage(policy.LFU)
	if err != nil {
		t.Fatalf("ResourceUsage(LFU) error = %v", err)
	}
	if lfuCount != 0 {
		t.Fatalf("ResourceUsage(LFU) count = %d, want 0", lfuCount)
	}
}

func TestStore_SizeMatchesSerializedLength(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	e := entry.New(identifier.Str("a"), []byte("abcd"), time.Now())

	size, err := s.Size(e)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size <= 0 {
		t.Fatalf("Size() = %d, want > 0", size)
	}

	want, err := driver.EncodedSize(e)
	if err != nil {
		t.Fatalf("EncodedSize() error = %v", err)
	}
	if size != want {
		t.Fatalf("Size() = %d, want serialized length %d", size, want)
	}
}
