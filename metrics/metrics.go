package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

// TreeMetrics counts the work done by a tree and its node store. All methods
// are safe for concurrent use and do nothing on a nil receiver.
type TreeMetrics struct {
	Fetch          int64
	FetchCacheHit  int64
	FetchCacheMiss int64
	FetchError     int64

	NodeWrite  int64
	NodeDelete int64
	NodePrune  int64

	Apply        int64
	ApplyFailure int64
	CommitNanos  int64
}

func (m *TreeMetrics) IncFetch(cacheHit bool) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Fetch, 1)
	if cacheHit {
		atomic.AddInt64(&m.FetchCacheHit, 1)
	} else {
		atomic.AddInt64(&m.FetchCacheMiss, 1)
	}
}

func (m *TreeMetrics) IncFetchError() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.FetchError, 1)
}

func (m *TreeMetrics) IncNodeWrite() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.NodeWrite, 1)
}

func (m *TreeMetrics) IncNodeDelete() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.NodeDelete, 1)
}

func (m *TreeMetrics) AddNodePrune(n int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.NodePrune, n)
}

func (m *TreeMetrics) IncApply(failed bool) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Apply, 1)
	if failed {
		atomic.AddInt64(&m.ApplyFailure, 1)
	}
}

func (m *TreeMetrics) AddCommitTime(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.CommitNanos, int64(d))
}

// Snapshot returns a copy of the counters.
func (m *TreeMetrics) Snapshot() TreeMetrics {
	if m == nil {
		return TreeMetrics{}
	}
	return TreeMetrics{
		Fetch:          atomic.LoadInt64(&m.Fetch),
		FetchCacheHit:  atomic.LoadInt64(&m.FetchCacheHit),
		FetchCacheMiss: atomic.LoadInt64(&m.FetchCacheMiss),
		FetchError:     atomic.LoadInt64(&m.FetchError),
		NodeWrite:      atomic.LoadInt64(&m.NodeWrite),
		NodeDelete:     atomic.LoadInt64(&m.NodeDelete),
		NodePrune:      atomic.LoadInt64(&m.NodePrune),
		Apply:          atomic.LoadInt64(&m.Apply),
		ApplyFailure:   atomic.LoadInt64(&m.ApplyFailure),
		CommitNanos:    atomic.LoadInt64(&m.CommitNanos),
	}
}

func (m *TreeMetrics) Report() string {
	s := m.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Fetch:\n fetches: %s, cache hits: %s, cache misses: %s, errors: %s\n",
		humanize.Comma(s.Fetch),
		humanize.Comma(s.FetchCacheHit),
		humanize.Comma(s.FetchCacheMiss),
		humanize.Comma(s.FetchError))
	fmt.Fprintf(&b, "\nNodes:\n writes: %s, deletes: %s, prunes: %s\n",
		humanize.Comma(s.NodeWrite),
		humanize.Comma(s.NodeDelete),
		humanize.Comma(s.NodePrune))
	fmt.Fprintf(&b, "\nTree:\n applies: %s, failures: %s, commit time: %s\n",
		humanize.Comma(s.Apply),
		humanize.Comma(s.ApplyFailure),
		time.Duration(s.CommitNanos).Round(time.Microsecond))
	return b.String()
}

// Collector exports TreeMetrics as Prometheus counters.
type Collector struct {
	m     *TreeMetrics
	descs []*prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

var counters = []struct{ name, help string }{
	{"fetch_total", "Nodes fetched from the node store."},
	{"fetch_cache_hit_total", "Fetches served from the node cache."},
	{"fetch_cache_miss_total", "Fetches that read the database."},
	{"fetch_error_total", "Fetches that failed."},
	{"node_write_total", "Nodes written by commits."},
	{"node_delete_total", "Nodes deleted from the node store."},
	{"node_prune_total", "Child links pruned after commit."},
	{"apply_total", "Batches applied."},
	{"apply_failure_total", "Batches that failed to apply."},
	{"commit_seconds_total", "Time spent committing."},
}

func NewCollector(namespace string, m *TreeMetrics) *Collector {
	c := &Collector{m: m}
	for _, ctr := range counters {
		c.descs = append(c.descs, prometheus.NewDesc(prometheus.BuildFQName(namespace, "tree", ctr.name), ctr.help, nil, nil))
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	values := []float64{
		float64(s.Fetch),
		float64(s.FetchCacheHit),
		float64(s.FetchCacheMiss),
		float64(s.FetchError),
		float64(s.NodeWrite),
		float64(s.NodeDelete),
		float64(s.NodePrune),
		float64(s.Apply),
		float64(s.ApplyFailure),
		time.Duration(s.CommitNanos).Seconds(),
	}
	for i, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, values[i])
	}
}
