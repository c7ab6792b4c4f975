// Package memory implements the "in-process memory" Store variant of
// §4.4: entries live only in a Go map for the process lifetime, with
// durability across restarts (when enabled) coming from the periodic
// snapshot blob in §4.7 rather than anything on disk per-entry.
package memory

import (
	"sync"

	"github.com/groc-prog/cache-nest/driver"
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/policy"
)

// Store holds one map of entries per policy behind a single mutex.
// The Engine already serializes all mutation through its own
// per-policy mutex table (§5) before ever calling into Store, so this
// lock only protects Store's bookkeeping from callers outside that
// discipline — namely the snapshot Writer's Source, which reads a
// consistent copy concurrently with live traffic.
type Store struct {
	mu      sync.RWMutex
	entries map[policy.Kind]map[string]entry.Entry
}

// NewStore builds an empty Store with a map pre-allocated for each of
// the six policies.
func NewStore() *Store {
	s := &Store{entries: make(map[policy.Kind]map[string]entry.Entry, len(driver.PolicyOrder))}
	for _, kind := range driver.PolicyOrder {
		s.entries[kind] = make(map[string]entry.Entry)
	}
	return s
}

// Load implements driver.Store.
func (s *Store) Load(kind policy.Kind, key string) (entry.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kind][key]
	return e, ok, nil
}

// Save implements driver.Store.
func (s *Store) Save(kind policy.Kind, key string, e entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[kind][key] = e
	return nil
}

// Remove implements driver.Store. Removing an absent key is a no-op.
func (s *Store) Remove(kind policy.Kind, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[kind], key)
	return nil
}

// Size implements driver.Store, reusing the same serialized-length
// accounting the disk driver uses so admission treats a byte the same
// way regardless of where it ends up living (§4.5).
func (s *Store) Size(e entry.Entry) (int64, error) {
	return driver.EncodedSize(e)
}

// ResourceUsage implements driver.Store.
func (s *Store) ResourceUsage(kind policy.Kind) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, e := range s.entries[kind] {
		n, err := driver.EncodedSize(e)
		if err != nil {
			return 0, 0, err
		}
		total += n
	}
	return len(s.entries[kind]), total, nil
}

// Snapshot returns a point-in-time copy of kind's entries keyed by
// cache key, for the snapshot Writer's Source to encode into a Blob
// without holding Store's lock for the whole msgpack encode.
func (s *Store) Snapshot(kind policy.Kind) map[string]entry.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]entry.Entry, len(s.entries[kind]))
	for k, e := range s.entries[kind] {
		out[k] = e
	}
	return out
}
