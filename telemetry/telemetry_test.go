package telemetry_test

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groc-prog/cache-nest/metrics"
	"github.com/groc-prog/cache-nest/telemetry"
)

func collectMetricFamilies(t *testing.T, reg *metrics.Registry) []*dto.MetricFamily {
	t.Helper()

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	return families
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

// counterValue returns the value of the counter in family matching labels,
// or 0 if family is nil or no child carries a value yet — a CounterVec
// with no .With() calls for a given label set simply has no child series.
func counterValue(t *testing.T, family *dto.MetricFamily, labels map[string]string) float64 {
	t.Helper()

	if family == nil {
		return 0
	}

	for _, m := range family.GetMetric() {
		got := make(map[string]string, len(m.GetLabel()))
		for _, l := range m.GetLabel() {
			got[l.GetName()] = l.GetValue()
		}

		match := true
		for k, v := range labels {
			if got[k] != v {
				match = false
				break
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}

	return 0
}

func TestEngineMetrics_LookupRecordsHitsAndMisses(t *testing.T) {
	reg := metrics.New()
	m := telemetry.New(reg, "cache-nest-test")

	m.Lookup("memory", "lru", "c.abc", true)
	m.Lookup("memory", "lru", "c.abc", false)
	m.Lookup("memory", "lru", "c.abc", false)

	families := collectMetricFamilies(t, reg)
	labels := map[string]string{"driver": "memory", "policy": "lru", "hash": "c.abc"}

	assert.Equal(t, float64(3), counterValue(t, findFamily(families, "cache_lookups_total"), labels))
	assert.Equal(t, float64(1), counterValue(t, findFamily(families, "cache_hits_total"), labels))
	assert.Equal(t, float64(2), counterValue(t, findFamily(families, "cache_misses_total"), labels))
}

func TestEngineMetrics_EvictionRecordsReasonAndTotal(t *testing.T) {
	reg := metrics.New()
	m := telemetry.New(reg, "cache-nest-test")

	m.Eviction("fileSystem", "fifo", "c.xyz", telemetry.EvictionTTL)
	m.Eviction("fileSystem", "fifo", "c.xyz", telemetry.EvictionSizeLimit)

	families := collectMetricFamilies(t, reg)
	labels := map[string]string{"driver": "fileSystem", "policy": "fifo", "hash": "c.xyz"}

	assert.Equal(t, float64(2), counterValue(t, findFamily(families, "cache_evictions_total"), labels))
	assert.Equal(t, float64(1), counterValue(t, findFamily(families, "cache_evictions_ttl_total"), labels))
	assert.Equal(t, float64(1), counterValue(t, findFamily(families, "cache_evictions_size_limit_total"), labels))
	assert.Equal(t, float64(0), counterValue(t, findFamily(families, "cache_evictions_invalidation_total"), labels))
}

func TestEngineMetrics_CacheCreatedAndDeleted(t *testing.T) {
	reg := metrics.New()
	m := telemetry.New(reg, "cache-nest-test")

	m.CacheCreated("memory", "rr", "c.def")
	m.CacheDeleted("memory", "rr", "c.def")

	families := collectMetricFamilies(t, reg)
	labels := map[string]string{"driver": "memory", "policy": "rr", "hash": "c.def"}

	assert.Equal(t, float64(1), counterValue(t, findFamily(families, "caches_created_total"), labels))
	assert.Equal(t, float64(1), counterValue(t, findFamily(families, "caches_deleted_total"), labels))
}
