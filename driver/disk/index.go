package disk

import (
	"errors"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/groc-prog/cache-nest/policy"
	"github.com/groc-prog/cache-nest/snapshot"
)

// ttlIndex mirrors ttl.dat (§4.6, §6: "ttl.dat contains a
// Map<string, integer> (absolute expiration)"): cache key to the
// absolute wall-clock time the entry expires at.
type ttlIndex map[string]time.Time

// invalidationIndex mirrors invalidation-identifiers.dat (§6:
// "invalidation-identifiers.dat contains a Map<string, Set<string>>"):
// invalidation key to the set of cache keys registered under it.
type invalidationIndex map[string]snapshot.Set

func (s *Store) readTTLIndex(kind policy.Kind) (ttlIndex, error) {
	path := ttlFilePath(s.mountPath, kind)
	idx := make(ttlIndex)

	err := s.ioWithRetry("readTTL "+path, func() error {
		return withFileLock(path, func() error {
			b, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) || len(b) == 0 {
				return nil
			}
			if err != nil {
				return err
			}
			return msgpack.Unmarshal(b, &idx)
		})
	})
	return idx, err
}

func (s *Store) writeTTLIndex(kind policy.Kind, idx ttlIndex) error {
	path := ttlFilePath(s.mountPath, kind)
	return s.ioWithRetry("writeTTL "+path, func() error {
		return withFileLock(path, func() error {
			return writeAtomic(path, func() ([]byte, error) { return msgpack.Marshal(idx) })
		})
	})
}

// updateTTLOnSave keeps ttl.dat in step with a cache file write: a
// positive TTL records this key's absolute expiration, a zero TTL
// (never expires) drops any prior entry for it.
func (s *Store) updateTTLOnSave(kind policy.Kind, key string, ctime time.Time, ttl time.Duration) error {
	idx, err := s.readTTLIndex(kind)
	if err != nil {
		return err
	}

	if ttl > 0 {
		idx[key] = ctime.Add(ttl)
	} else {
		delete(idx, key)
	}

	return s.writeTTLIndex(kind, idx)
}

func (s *Store) removeFromTTLIndex(kind policy.Kind, key string) error {
	idx, err := s.readTTLIndex(kind)
	if err != nil {
		return err
	}
	if _, ok := idx[key]; !ok {
		return nil
	}
	delete(idx, key)
	return s.writeTTLIndex(kind, idx)
}

func (s *Store) readInvalidationIndex(kind policy.Kind) (invalidationIndex, error) {
	path := invalidationFilePath(s.mountPath, kind)
	idx := make(invalidationIndex)

	err := s.ioWithRetry("readInvalidation "+path, func() error {
		return withFileLock(path, func() error {
			b, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) || len(b) == 0 {
				return nil
			}
			if err != nil {
				return err
			}
			return msgpack.Unmarshal(b, &idx)
		})
	})
	return idx, err
}

func (s *Store) writeInvalidationIndex(kind policy.Kind, idx invalidationIndex) error {
	path := invalidationFilePath(s.mountPath, kind)
	return s.ioWithRetry("writeInvalidation "+path, func() error {
		return withFileLock(path, func() error {
			return writeAtomic(path, func() ([]byte, error) { return msgpack.Marshal(idx) })
		})
	})
}

// addInvalidationLinks registers key under every invalidation key in
// invKeys (§4.8's set path, mirrored to disk).
func (s *Store) addInvalidationLinks(kind policy.Kind, key string, invKeys snapshot.Set) error {
	if len(invKeys) == 0 {
		return nil
	}

	idx, err := s.readInvalidationIndex(kind)
	if err != nil {
		return err
	}

	for invKey := range invKeys {
		set, ok := idx[invKey]
		if !ok {
			set = snapshot.NewSet()
			idx[invKey] = set
		}
		set[key] = struct{}{}
	}

	return s.writeInvalidationIndex(kind, idx)
}

// removeInvalidationLinks drops key from every invalidation key's set
// it previously appeared in, dropping any set that becomes empty
// (§4.8's eviction path, mirrored to disk).
func (s *Store) removeInvalidationLinks(kind policy.Kind, key string, invKeys snapshot.Set) error {
	if len(invKeys) == 0 {
		return nil
	}

	idx, err := s.readInvalidationIndex(kind)
	if err != nil {
		return err
	}

	changed := false
	for invKey := range invKeys {
		set, ok := idx[invKey]
		if !ok {
			continue
		}
		delete(set, key)
		changed = true
		if len(set) == 0 {
			delete(idx, invKey)
		}
	}
	if !changed {
		return nil
	}

	return s.writeInvalidationIndex(kind, idx)
}
