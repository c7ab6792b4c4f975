// Package telemetry wires the core's observable events into the
// prometheus-backed metrics.Registry and an OpenTelemetry tracer,
// generalizing the teacher's metrics.CacheMetrics (a single cache's hit
// /miss/eviction counters) into a set of vectors labeled by the three
// dimensions §6 calls out: driver, policy and the cache's identifier
// digest.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/groc-prog/cache-nest/metrics"
)

const (
	labelDriver = "driver"
	labelPolicy = "policy"
	labelHash   = "hash"
)

var vectorLabels = []string{labelDriver, labelPolicy, labelHash}

// EvictionReason distinguishes the three ways an entry leaves a cache
// (§4.5, §4.8), each tracked by its own counter per §6.
type EvictionReason string

const (
	EvictionTTL          EvictionReason = "ttl"
	EvictionInvalidation EvictionReason = "invalidation"
	EvictionSizeLimit    EvictionReason = "size_limit"
)

// EngineMetrics is the full set of counters §6 requires, each a
// CounterVec over {driver, policy, hash}.
type EngineMetrics struct {
	cachesCreated *prometheus.CounterVec
	cachesDeleted *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	evictionsTTL  *prometheus.CounterVec
	evictionsInv  *prometheus.CounterVec
	evictionsSize *prometheus.CounterVec

	tracer trace.Tracer
	reg    *metrics.Registry
}

// Registry returns the Registry EngineMetrics was built on, so that
// other instrumented components (e.g. the driver's TTL-event channel
// monitors) register onto the same Prometheus registry instead of
// standing up one of their own.
func (m *EngineMetrics) Registry() *metrics.Registry {
	return m.reg
}

// New builds an EngineMetrics on top of reg, registering all nine
// counters, and a tracer named name (§6, §11).
func New(reg *metrics.Registry, tracerName string) *EngineMetrics {
	return &EngineMetrics{
		reg:           reg,
		cachesCreated: reg.NewCounterVec("caches_created_total", "Total number of caches created.", vectorLabels),
		cachesDeleted: reg.NewCounterVec("caches_deleted_total", "Total number of caches deleted.", vectorLabels),
		lookups:       reg.NewCounterVec("cache_lookups_total", "Total number of cache lookups.", vectorLabels),
		hits:          reg.NewCounterVec("cache_hits_total", "Total number of cache hits.", vectorLabels),
		misses:        reg.NewCounterVec("cache_misses_total", "Total number of cache misses.", vectorLabels),
		evictions:     reg.NewCounterVec("cache_evictions_total", "Total number of cache evictions, all reasons.", vectorLabels),
		evictionsTTL:  reg.NewCounterVec("cache_evictions_ttl_total", "Total number of evictions caused by TTL expiry.", vectorLabels),
		evictionsInv:  reg.NewCounterVec("cache_evictions_invalidation_total", "Total number of evictions caused by invalidation.", vectorLabels),
		evictionsSize: reg.NewCounterVec("cache_evictions_size_limit_total", "Total number of evictions caused by size-limit admission.", vectorLabels),
		tracer:        otel.Tracer(tracerName),
	}
}

func labels(driver, policy, hash string) prometheus.Labels {
	return prometheus.Labels{labelDriver: driver, labelPolicy: policy, labelHash: hash}
}

func (m *EngineMetrics) CacheCreated(driver, policy, hash string) {
	m.cachesCreated.With(labels(driver, policy, hash)).Inc()
}

func (m *EngineMetrics) CacheDeleted(driver, policy, hash string) {
	m.cachesDeleted.With(labels(driver, policy, hash)).Inc()
}

func (m *EngineMetrics) Lookup(driver, policy, hash string, hit bool) {
	l := labels(driver, policy, hash)
	m.lookups.With(l).Inc()
	if hit {
		m.hits.With(l).Inc()
	} else {
		m.misses.With(l).Inc()
	}
}

func (m *EngineMetrics) Eviction(driver, policy, hash string, reason EvictionReason) {
	l := labels(driver, policy, hash)
	m.evictions.With(l).Inc()

	switch reason {
	case EvictionTTL:
		m.evictionsTTL.With(l).Inc()
	case EvictionInvalidation:
		m.evictionsInv.With(l).Inc()
	case EvictionSizeLimit:
		m.evictionsSize.With(l).Inc()
	}
}

// StartSpan starts a trace span named name, returning the derived
// context and the span to end when the traced operation completes.
func (m *EngineMetrics) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, opts...)
}
