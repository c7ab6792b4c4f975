// Package entry defines the cache entry record (§3) and its shared
// constructor (§4.3), used by every policy/driver regardless of eviction
// strategy.
package entry

import (
	"time"

	"github.com/groc-prog/cache-nest/identifier"
)

// Options controls TTL and invalidation behavior for a single entry.
// The zero value means "never expires, invalidated by nothing".
type Options struct {
	// TTL is the entry's time-to-live. Zero means the entry never expires.
	TTL time.Duration
	// InvalidatedBy lists the invalidation identifiers this entry
	// registers itself under; invalidating any of them removes the entry.
	InvalidatedBy []identifier.Identifier
}

// Entry is the cache record of §3: identifier, opaque payload, optional
// metadata, access statistics, and TTL/invalidation options.
type Entry struct {
	Identifier identifier.Identifier
	Data       []byte
	Metadata   map[string]any
	Hits       uint64
	CTime      time.Time
	ATime      time.Time
	Options    Options

	// InvalidationKeys carries the invalidation-key digests this entry
	// is registered under once they've been computed from
	// Options.InvalidatedBy. A Store round-trip (disk file, snapshot
	// blob) can only ever recover digests, not the original identifiers
	// they were hashed from, so a reloaded Entry carries them here
	// instead of in Options.InvalidatedBy — a re-save (e.g. the hit path
	// refreshing atime) must persist these, not an empty
	// Options.InvalidatedBy, or the entry silently loses its
	// invalidation links.
	InvalidationKeys []string
}

// Option configures an Entry at construction time.
type Option func(*Entry)

// WithTTL sets the entry's time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(e *Entry) {
		e.Options.TTL = ttl
	}
}

// WithInvalidatedBy registers the invalidation identifiers this entry
// should be removed by.
func WithInvalidatedBy(ids ...identifier.Identifier) Option {
	return func(e *Entry) {
		e.Options.InvalidatedBy = ids
	}
}

// WithMetadata sets the entry's opaque metadata map.
func WithMetadata(metadata map[string]any) Option {
	return func(e *Entry) {
		e.Metadata = metadata
	}
}

// New composes an Entry the way every policy and driver expects: hits at
// zero, CTime and ATime both set to now, and the caller's options merged
// over the zero-value defaults (ttl=0, no invalidation tags). If the
// merged TTL is positive, the caller is responsible for registering a
// timer with the owning policy (§4.3) — entry construction itself never
// schedules one, since policies own TTL tracking, not entries.
func New(id identifier.Identifier, data []byte, now time.Time, opts ...Option) Entry {
	e := Entry{
		Identifier: id,
		Data:       data,
		CTime:      now,
		ATime:      now,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

// Expired reports whether e's TTL (relative to its CTime) has elapsed as
// of now. An entry with TTL==0 never expires.
func (e Entry) Expired(now time.Time) bool {
	if e.Options.TTL <= 0 {
		return false
	}
	return e.CTime.Add(e.Options.TTL).Before(now)
}
