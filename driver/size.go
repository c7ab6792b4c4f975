package driver

import (
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/identifier"
	"github.com/groc-prog/cache-nest/snapshot"
)

func identifierDigest(id identifier.Identifier) string {
	return identifier.Digest(id, identifier.KindInvalidation)
}

var sizeCodec = snapshot.Codec{}

// EncodedSize returns e's size as the snapshot codec would serialize it
// — the "serialized length" §4.5 bases admission accounting on, shared
// by both Store implementations so memory and disk agree on what a byte
// of cache "costs".
func EncodedSize(e entry.Entry) (int64, error) {
	record := toEntryRecord("", e)
	b, err := sizeCodec.EncodeBytes(snapshot.Blob{Caches: []snapshot.CacheRecord{{Entries: []snapshot.EntryRecord{record}}}})
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// invalidationDigests returns e's invalidation-key digests: computed
// fresh from Options.InvalidatedBy when the caller supplied the
// original identifiers (the first Set of an entry), or carried forward
// from InvalidationKeys otherwise (every re-save after a Store
// round-trip, which only ever hands back digests, never the
// identifiers they came from — see entry.Entry.InvalidationKeys).
func invalidationDigests(e entry.Entry) snapshot.Set {
	if len(e.Options.InvalidatedBy) > 0 {
		invalidated := make(snapshot.Set, len(e.Options.InvalidatedBy))
		for _, id := range e.Options.InvalidatedBy {
			invalidated[identifierDigest(id)] = struct{}{}
		}
		return invalidated
	}

	return snapshot.NewSet(e.InvalidationKeys...)
}

func toEntryRecord(key string, e entry.Entry) snapshot.EntryRecord {
	invalidated := invalidationDigests(e)

	return snapshot.EntryRecord{
		Key:           key,
		Data:          e.Data,
		Metadata:      snapshot.Map(e.Metadata),
		Hits:          e.Hits,
		CTime:         e.CTime,
		ATime:         e.ATime,
		TTL:           e.Options.TTL,
		InvalidatedBy: invalidated,
	}
}

// ToRecord converts an entry and its cache key into the record format
// shared by the snapshot blob (§4.7) and the disk driver's per-entry
// files (§4.6): invalidatedBy identifiers are pre-hashed to
// invalidation-key digests, since recovery only ever needs to relink
// the invalidation index by digest, never reconstruct the identifier
// tree that produced it.
func ToRecord(key string, e entry.Entry) snapshot.EntryRecord {
	return toEntryRecord(key, e)
}

// FromRecord reconstructs the entry.Entry a snapshot/disk record
// represents. The original Identifier is never persisted, only its
// cache-key and invalidation-key digests are, so a restored entry's
// Identifier is the zero value — nothing downstream needs it again,
// since policies and the invalidation index operate purely on digests
// (§4.7's replay path hands invalidation keys straight to
// Engine.RestoreEntry rather than re-deriving them from an Identifier).
func FromRecord(rec snapshot.EntryRecord) entry.Entry {
	return entry.Entry{
		Data:     rec.Data,
		Metadata: map[string]any(rec.Metadata),
		Hits:     rec.Hits,
		CTime:    rec.CTime,
		ATime:    rec.ATime,
		Options: entry.Options{
			TTL: rec.TTL,
		},
		InvalidationKeys: rec.InvalidatedBy.Members(),
	}
}
