package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/rbkit/pkg/msgcache"
	"github.com/Sumatoshi-tech/rbkit/pkg/rbtree"
)

const (
	metricOpsTotal    = "rbkit.ops.total"
	metricOpDuration  = "rbkit.op.duration.seconds"
	metricErrorsTotal = "rbkit.errors.total"

	metricTreeInserts   = "rbkit.tree.inserts"
	metricTreeDetaches  = "rbkit.tree.detaches"
	metricTreeRotations = "rbkit.tree.rotations"
	metricTreeSwaps     = "rbkit.tree.swaps"

	metricCacheHits       = "rbkit.cache.hits"
	metricCacheMisses     = "rbkit.cache.misses"
	metricCacheDuplicates = "rbkit.cache.duplicates"
	metricCacheEvictions  = "rbkit.cache.evictions"
	metricCacheExpired    = "rbkit.cache.expired"
	metricCacheEntries    = "rbkit.cache.entries"
	metricCacheBytes      = "rbkit.cache.bytes"

	attrOp     = "op"
	attrStatus = "status"
	attrTree   = "tree"
	attrCache  = "cache"

	// StatusOK marks a successful operation.
	StatusOK = "ok"
	// StatusError marks a failed operation.
	StatusError = "error"
)

// opBucketBoundaries covers 100ns to 10ms: single tree operations are
// logarithmic in the element count.
var opBucketBoundaries = []float64{1e-7, 2.5e-7, 5e-7, 1e-6, 2.5e-6, 5e-6, 1e-5, 1e-4, 1e-3, 1e-2}

// OpMetrics holds the rate, error and duration instruments of tree operations.
type OpMetrics struct {
	opsTotal    metric.Int64Counter
	opDuration  metric.Float64Histogram
	errorsTotal metric.Int64Counter
}

// NewOpMetrics creates operation instruments from the given meter.
func NewOpMetrics(mt metric.Meter) (*OpMetrics, error) {
	b := newMetricBuilder(mt)

	om := &OpMetrics{
		opsTotal:    b.counter(metricOpsTotal, "Total number of tree operations", "{operation}"),
		opDuration:  b.histogram(metricOpDuration, "Tree operation duration in seconds", "s", opBucketBoundaries...),
		errorsTotal: b.counter(metricErrorsTotal, "Total number of failed tree operations", "{error}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return om, nil
}

// RecordOp records a completed operation with its name, status, and duration.
func (om *OpMetrics) RecordOp(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	om.opsTotal.Add(ctx, 1, attrs)
	om.opDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		om.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TreeStatsFunc reports the structural counters of a tree. Tree.Stats of any
// element type fits.
type TreeStatsFunc func() rbtree.Stats

// RegisterTreeMetrics exports the structural counters of the named trees as
// observable counters labeled by tree name.
func RegisterTreeMetrics(mt metric.Meter, trees map[string]TreeStatsFunc) error {
	if len(trees) == 0 {
		return nil
	}

	b := newMetricBuilder(mt)
	inserts := b.observableCounter(metricTreeInserts, "Elements linked into the tree", "{node}")
	detaches := b.observableCounter(metricTreeDetaches, "Elements unlinked from the tree", "{node}")
	rotations := b.observableCounter(metricTreeRotations, "Rotations performed by rebalancing", "{rotation}")
	swaps := b.observableCounter(metricTreeSwaps, "Structural node swaps performed by deletion", "{swap}")

	if b.err != nil {
		return b.err
	}

	_, err := mt.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, statsFn := range trees {
			st := statsFn()
			attrs := metric.WithAttributes(attribute.String(attrTree, name))

			o.ObserveInt64(inserts, st.Inserts, attrs)
			o.ObserveInt64(detaches, st.Detaches, attrs)
			o.ObserveInt64(rotations, st.Rotations, attrs)
			o.ObserveInt64(swaps, st.Swaps, attrs)
		}

		return nil
	}, inserts, detaches, rotations, swaps)
	if err != nil {
		return fmt.Errorf("register tree metrics callback: %w", err)
	}

	return nil
}

// CacheStatsProvider exposes message cache counters. *msgcache.Cache implements it.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
	Stats() msgcache.Stats
}

// RegisterCacheMetrics exports message cache statistics as observable gauges
// labeled by cache name. Nil providers are skipped.
func RegisterCacheMetrics(mt metric.Meter, caches map[string]CacheStatsProvider) error {
	live := make(map[string]CacheStatsProvider, len(caches))

	for name, provider := range caches {
		if provider != nil {
			live[name] = provider
		}
	}

	if len(live) == 0 {
		return nil
	}

	b := newMetricBuilder(mt)
	hits := b.gauge(metricCacheHits, "Cache hit count", "{hit}")
	misses := b.gauge(metricCacheMisses, "Cache miss count", "{miss}")
	duplicates := b.gauge(metricCacheDuplicates, "Retransmitted messages answered from cache", "{message}")
	evictions := b.gauge(metricCacheEvictions, "Live entries evicted for capacity", "{entry}")
	expired := b.gauge(metricCacheExpired, "Entries dropped after their lifetime", "{entry}")
	entries := b.gauge(metricCacheEntries, "Entries currently cached", "{entry}")
	size := b.gauge(metricCacheBytes, "Accounted size of cached entries", "By")

	if b.err != nil {
		return b.err
	}

	_, err := mt.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for name, provider := range live {
			st := provider.Stats()
			attrs := metric.WithAttributes(attribute.String(attrCache, name))

			o.ObserveInt64(hits, provider.CacheHits(), attrs)
			o.ObserveInt64(misses, provider.CacheMisses(), attrs)
			o.ObserveInt64(duplicates, st.Duplicates, attrs)
			o.ObserveInt64(evictions, st.Evictions, attrs)
			o.ObserveInt64(expired, st.Expired, attrs)
			o.ObserveInt64(entries, int64(st.Entries), attrs)
			o.ObserveInt64(size, st.Bytes, attrs)
		}

		return nil
	}, hits, misses, duplicates, evictions, expired, entries, size)
	if err != nil {
		return fmt.Errorf("register cache metrics callback: %w", err)
	}

	return nil
}
