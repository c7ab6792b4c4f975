package snapshot

import (
	"time"

	"github.com/groc-prog/cache-nest/policy"
)

// ReplayedCache is one cache's state after filtering expired entries out
// of a decoded Blob, ready for a driver to re-insert into its entry
// table and hand to the policy's ApplySnapshot (§4.7's read path).
type ReplayedCache struct {
	Hash     string
	Policy   policy.Kind
	Entries  []EntryRecord
	Snapshot policy.Snapshot
}

// Replay filters blob's caches down to entries that haven't expired as
// of now, per §4.7: "if options.ttl > 0 and ctime + ttl < now, drop it".
// The driver is responsible for placing the surviving entries, rebuilding
// the invalidation index, registering the remaining TTL duration on each,
// and then calling policy.ApplySnapshot with the validKeys set it ends up
// with (which may differ further, e.g. if a policy rejects a duplicate).
func Replay(blob Blob, now time.Time) []ReplayedCache {
	replayed := make([]ReplayedCache, 0, len(blob.Caches))

	for _, c := range blob.Caches {
		valid := make([]EntryRecord, 0, len(c.Entries))
		for _, e := range c.Entries {
			if e.TTL > 0 && e.CTime.Add(e.TTL).Before(now) {
				continue
			}
			valid = append(valid, e)
		}

		replayed = append(replayed, ReplayedCache{
			Hash:    c.Hash,
			Policy:  c.Policy,
			Entries: valid,
			Snapshot: policy.Snapshot{
				Order:  c.PolicyOrder,
				Counts: c.PolicyCounts,
			},
		})
	}

	return replayed
}

// BuildCacheRecord assembles a CacheRecord from a cache's current entry
// set and its policy's GetSnapshot output, for the Writer to fold into a
// Blob on each write tick.
func BuildCacheRecord(hash string, kind policy.Kind, entries []EntryRecord, snap policy.Snapshot) CacheRecord {
	return CacheRecord{
		Hash:         hash,
		Policy:       kind,
		Entries:      entries,
		PolicyOrder:  snap.Order,
		PolicyCounts: snap.Counts,
	}
}
