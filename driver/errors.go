package driver

import "errors"

// Sentinel errors surfaced by the core (§7). Policy-internal anomalies
// (redundant track, unknown stopTracking, empty evict) are warnings
// logged by the policy itself, never errors — these are reserved for
// the admission, lookup and I/O failures §7 calls out.
var (
	// ErrCacheTooBig is returned by Set when the entry alone exceeds
	// maxSize; admission never attempts to evict for it.
	ErrCacheTooBig = errors.New("driver: entry exceeds maxSize")

	// ErrNoCachesToEvict is returned by Set when admission could not
	// free enough space even after evicting from every eligible policy.
	ErrNoCachesToEvict = errors.New("driver: admission could not free enough space")

	// ErrNotFound is returned by Get/Delete for an absent key. Non-fatal:
	// callers are expected to treat it as a miss.
	ErrNotFound = errors.New("driver: key not found")

	// ErrFilesystemIO wraps a disk driver I/O failure that survived
	// retries. Logged and propagated to the caller as a generic
	// internal failure (§7), unlike SnapshotReadFailed/WriteFailed which
	// are always swallowed.
	ErrFilesystemIO = errors.New("driver: filesystem I/O failure")
)
