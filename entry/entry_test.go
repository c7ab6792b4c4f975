package entry_test

import (
	"testing"
	"time"

	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/identifier"
)

func TestNew_DefaultsCTimeEqualsATime(t *testing.T) {
	now := time.Now()
	e := entry.New(identifier.Str("k"), []byte("v"), now)

	if !e.CTime.Equal(e.ATime) {
		t.Fatalf("expected ctime == atime on construction, got %v and %v", e.CTime, e.ATime)
	}
	if e.Hits != 0 {
		t.Fatalf("expected hits to start at 0, got %d", e.Hits)
	}
	if e.Options.TTL != 0 {
		t.Fatalf("expected default ttl to be 0, got %v", e.Options.TTL)
	}
}

func TestNew_AppliesOptions(t *testing.T) {
	now := time.Now()
	invalidator := identifier.Str("tag")

	e := entry.New(
		identifier.Str("k"), []byte("v"), now,
		entry.WithTTL(5*time.Second),
		entry.WithInvalidatedBy(invalidator),
		entry.WithMetadata(map[string]any{"source": "test"}),
	)

	if e.Options.TTL != 5*time.Second {
		t.Fatalf("expected ttl override to apply, got %v", e.Options.TTL)
	}
	if len(e.Options.InvalidatedBy) != 1 {
		t.Fatalf("expected 1 invalidation tag, got %d", len(e.Options.InvalidatedBy))
	}
	if e.Metadata["source"] != "test" {
		t.Fatalf("expected metadata to be set")
	}
}

func TestEntry_ExpiredRespectsZeroTTL(t *testing.T) {
	now := time.Now()
	e := entry.New(identifier.Str("k"), []byte("v"), now)

	if e.Expired(now.Add(365 * 24 * time.Hour)) {
		t.Fatalf("expected ttl=0 entries to never expire")
	}
}

func TestEntry_ExpiredAfterTTLElapses(t *testing.T) {
	now := time.Now()
	e := entry.New(identifier.Str("k"), []byte("v"), now, entry.WithTTL(time.Second))

	if e.Expired(now.Add(500 * time.Millisecond)) {
		t.Fatalf("expected entry to still be valid before ttl elapses")
	}
	if !e.Expired(now.Add(1500 * time.Millisecond)) {
		t.Fatalf("expected entry to be expired after ttl elapses")
	}
}
