package driver

import (
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/policy"
)

// Store is the persistence backend an Engine is built on. It knows
// nothing about policies, admission, or invalidation — those are the
// Engine's job — only how to durably hold one policy's entries. memory
// and disk each provide their own Store, so the admission/eviction/
// invalidation logic in Engine is written exactly once and shared
// between the two driver variants the spec calls for (§4.4).
type Store interface {
	// Load returns the entry for key under kind, or ok=false if absent.
	Load(kind policy.Kind, key string) (e entry.Entry, ok bool, err error)
	// Save durably writes e under key/kind, overwriting any prior value.
	Save(kind policy.Kind, key string, e entry.Entry) error
	// Remove deletes key's entry under kind. Removing an absent key is
	// not an error.
	Remove(kind policy.Kind, key string) error
	// Size reports e's serialized size in bytes, the unit admission
	// accounting is done in (§4.5's "size S (serialized length)").
	Size(e entry.Entry) (int64, error)
	// ResourceUsage reports the entry count and total serialized bytes
	// currently stored under kind.
	ResourceUsage(kind policy.Kind) (count int, bytes int64, err error)
}
