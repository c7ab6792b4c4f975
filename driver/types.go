package driver

import "github.com/groc-prog/cache-nest/policy"

// PolicyUsage is one policy's share of a driver's resource usage.
type PolicyUsage struct {
	Policy   policy.Kind
	Entries  int
	Bytes    int64
	Fraction float64 // Bytes / driver maxSize
}

// ResourceUsage is the result of a driver's resourceUsage() operation
// (§4.4): a per-policy breakdown plus totals.
type ResourceUsage struct {
	Policies     []PolicyUsage
	TotalBytes   int64
	TotalEntries int
	MaxSize      int64
}
