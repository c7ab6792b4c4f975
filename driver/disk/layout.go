// Package disk implements the on-disk Store variant of §4.4 and its
// layout, recovery, and file-locking rules from §4.6: one subdirectory
// per policy under mountPath, one file per entry, plus a shared
// invalidation-index file and TTL file per subdirectory.
package disk

import (
	"path/filepath"

	"github.com/groc-prog/cache-nest/policy"
)

const (
	invalidationFileName = "invalidation-identifiers.dat"
	ttlFileName          = "ttl.dat"
	entryFileExt         = ".dat"
)

// reservedFileNames excludes the invalidation and TTL files from
// resourceUsage's per-policy file count (§4.6): they hold index state,
// not cache payload, and counting them would inflate a policy's
// reported size against entries that were never admitted through §4.5.
var reservedFileNames = map[string]struct{}{
	invalidationFileName: {},
	ttlFileName:          {},
}

func policyDir(mountPath string, kind policy.Kind) string {
	return filepath.Join(mountPath, kind.String())
}

func cacheFilePath(mountPath string, kind policy.Kind, key string) string {
	return filepath.Join(policyDir(mountPath, kind), key+entryFileExt)
}

func invalidationFilePath(mountPath string, kind policy.Kind) string {
	return filepath.Join(policyDir(mountPath, kind), invalidationFileName)
}

func ttlFilePath(mountPath string, kind policy.Kind) string {
	return filepath.Join(policyDir(mountPath, kind), ttlFileName)
}
