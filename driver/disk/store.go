package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/groc-prog/cache-nest/circuitbreaker"
	"github.com/groc-prog/cache-nest/driver"
	"github.com/groc-prog/cache-nest/entry"
	"github.com/groc-prog/cache-nest/logger"
	"github.com/groc-prog/cache-nest/policy"
	"github.com/groc-prog/cache-nest/retry"
	"github.com/groc-prog/cache-nest/snapshot"
)

// Store is the on-disk Store variant of §4.4/§4.6: one file per entry
// under a per-policy subdirectory of mountPath. Every read and write
// goes through ioWithRetry, which wraps the raw os call in the
// teacher's retry package (absorbing a transient EBUSY/EINTR) inside a
// circuit breaker (so a genuinely dead mount fails fast instead of
// retrying into it indefinitely) before surfacing driver.ErrFilesystemIO.
type Store struct {
	mountPath string
	log       logger.ILogger
	breaker   *circuitbreaker.CircuitBreaker
}

// NewStore builds a Store rooted at mountPath. EnsureLayout must be
// called once (normally from Driver.Init) before serving traffic.
func NewStore(mountPath string, log logger.ILogger) *Store {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Store{
		mountPath: mountPath,
		log:       log,
		breaker: circuitbreaker.New(
			circuitbreaker.WithThreshold(5),
			circuitbreaker.WithTimeout(30*time.Second),
		),
	}
}

// ioWithRetry runs fn through three retry attempts with exponential
// backoff, itself guarded by the store's circuit breaker, and maps any
// surviving error to driver.ErrFilesystemIO (§7's "FilesystemIO ...
// logged and propagated as a generic internal failure").
func (s *Store) ioWithRetry(op string, fn func() error) error {
	err := s.breaker.Execute(func() error {
		return retry.Do(context.Background(), func(context.Context) error {
			return fn()
		}, retry.WithMaxAttempts(3), retry.WithDelay(10*time.Millisecond))
	})
	if err == nil {
		return nil
	}

	s.log.Warningf("driver(fileSystem): %s failed: %v", op, err)
	return fmt.Errorf("%w: %s: %v", driver.ErrFilesystemIO, op, err)
}

// EnsureLayout creates mountPath's six policy subdirectories and, in
// each, an empty invalidation-identifiers.dat/ttl.dat if one doesn't
// already exist (§4.6's init step: "ensure the invalidation and TTL
// files exist").
func (s *Store) EnsureLayout() error {
	for _, kind := range driver.PolicyOrder {
		dir := policyDir(s.mountPath, kind)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating %s: %v", driver.ErrFilesystemIO, dir, err)
		}

		if err := s.ensureFile(invalidationFilePath(s.mountPath, kind), func() ([]byte, error) {
			return msgpack.Marshal(invalidationIndex{})
		}); err != nil {
			return err
		}
		if err := s.ensureFile(ttlFilePath(s.mountPath, kind), func() ([]byte, error) {
			return msgpack.Marshal(ttlIndex{})
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureFile(path string, empty func() ([]byte, error)) error {
	return s.ioWithRetry("ensureFile "+path, func() error {
		return withFileLock(path, func() error {
			if _, err := os.Stat(path); err == nil {
				return nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return writeAtomic(path, empty)
		})
	})
}

// Load implements driver.Store.
func (s *Store) Load(kind policy.Kind, key string) (entry.Entry, bool, error) {
	path := cacheFilePath(s.mountPath, kind, key)

	var rec snapshot.EntryRecord
	var found bool

	err := s.ioWithRetry("load "+path, func() error {
		return withFileLock(path, func() error {
			b, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			found = true
			decoded, err := decodeEntryRecord(b)
			if err != nil {
				return err
			}
			rec = decoded
			return nil
		})
	})
	if err != nil {
		return entry.Entry{}, false, err
	}
	if !found {
		return entry.Entry{}, false, nil
	}

	return driver.FromRecord(rec), true, nil
}

// Save implements driver.Store. Besides the entry's own file, it keeps
// the policy's ttl.dat and invalidation-identifiers.dat index files in
// step (§4.6, §4.8) so a later recovery scan has an authoritative
// mirror to cross-check against, even though recovery itself rebuilds
// the engine's live invalidation index from each entry file directly
// (see Driver.recoverPolicy) rather than trusting the index files alone.
func (s *Store) Save(kind policy.Kind, key string, e entry.Entry) error {
	path := cacheFilePath(s.mountPath, kind, key)
	rec := driver.ToRecord(key, e)

	if err := s.ioWithRetry("save "+path, func() error {
		return withFileLock(path, func() error {
			return writeAtomic(path, func() ([]byte, error) {
				return encodeEntryRecord(rec)
			})
		})
	}); err != nil {
		return err
	}

	if err := s.updateTTLOnSave(kind, key, e.CTime, e.Options.TTL); err != nil {
		return err
	}
	return s.addInvalidationLinks(kind, key, rec.InvalidatedBy)
}

// Remove implements driver.Store. Removing an absent key is a no-op.
// The entry is read before its file is deleted purely so its
// invalidatedBy digests can be scrubbed from invalidation-identifiers.dat;
// a read failure here is non-fatal (best-effort index hygiene), the
// cache file removal itself is what Remove's caller depends on.
func (s *Store) Remove(kind policy.Kind, key string) error {
	path := cacheFilePath(s.mountPath, kind, key)

	var invKeys snapshot.Set
	if b, err := os.ReadFile(path); err == nil {
		if rec, derr := decodeEntryRecord(b); derr == nil {
			invKeys = rec.InvalidatedBy
		}
	}

	if err := s.ioWithRetry("remove "+path, func() error {
		return withFileLock(path, func() error {
			err := os.Remove(path)
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		})
	}); err != nil {
		return err
	}

	if err := s.removeFromTTLIndex(kind, key); err != nil {
		return err
	}
	return s.removeInvalidationLinks(kind, key, invKeys)
}

// Size implements driver.Store: the serialized length a Save would
// write, the same accounting unit the memory driver's Store uses, so
// admission treats a byte the same regardless of which driver holds it
// (§4.5).
func (s *Store) Size(e entry.Entry) (int64, error) {
	return driver.EncodedSize(e)
}

// ResourceUsage implements driver.Store: the count and total size of
// regular entry files under kind's subdirectory, excluding the
// invalidation/TTL index files (§4.6's "counts only regular files
// under that subdirectory").
func (s *Store) ResourceUsage(kind policy.Kind) (int, int64, error) {
	dir := policyDir(s.mountPath, kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("%w: reading %s: %v", driver.ErrFilesystemIO, dir, err)
	}

	var count int
	var total int64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if _, reserved := reservedFileNames[de.Name()]; reserved {
			continue
		}
		if filepath.Ext(de.Name()) != entryFileExt {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		count++
		total += info.Size()
	}

	return count, total, nil
}

func encodeEntryRecord(rec snapshot.EntryRecord) ([]byte, error) {
	return snapshot.Codec{}.EncodeBytes(snapshot.Blob{Caches: []snapshot.CacheRecord{{Entries: []snapshot.EntryRecord{rec}}}})
}

func decodeEntryRecord(b []byte) (snapshot.EntryRecord, error) {
	blob, err := snapshot.Codec{}.Decode(bytes.NewReader(b))
	if err != nil {
		return snapshot.EntryRecord{}, err
	}
	if len(blob.Caches) == 0 || len(blob.Caches[0].Entries) == 0 {
		return snapshot.EntryRecord{}, fmt.Errorf("disk: empty entry record")
	}
	return blob.Caches[0].Entries[0], nil
}

// writeAtomic writes the bytes build returns to a temp file in path's
// directory, fsyncs it, then renames it over path — the same
// write-temp-then-rename discipline the snapshot.Writer uses, so a
// reader (or a concurrent recovery scan) never observes a
// partially-written cache file.
func writeAtomic(path string, build func() ([]byte, error)) error {
	b, err := build()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
