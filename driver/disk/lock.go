package disk

import (
	"github.com/gofrs/flock"
)

// withFileLock takes an exclusive filesystem lock on a sibling
// "<path>.lock" file for the duration of fn, releasing it on every
// exit path including one where fn returns an error (§4.6: "Locks are
// released on all exit paths, including error paths"). Locking a
// sibling file rather than path itself means the lock survives the
// atomic rename withFileLock's callers use to replace path's content.
func withFileLock(path string, fn func() error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck // releasing a held lock cannot meaningfully fail here

	return fn()
}
