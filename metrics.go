package regmint

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

var AllocBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regmint",
	Subsystem: "allocator",
	Name:      "batches",
}, []string{"table"})

var AllocCollisions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regmint",
	Subsystem: "allocator",
	Name:      "collisions",
}, []string{"table"})

var BackfillUpdated = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "regmint",
	Subsystem: "backfill",
	Name:      "updated",
}, []string{"table", "strategy"})

var BackfillDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "regmint",
	Subsystem: "backfill",
	Name:      "duration_seconds",
	Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
}, []string{"table"})

// RegisterMetrics registers the package counters plus the engine's storage
// collector on reg.
func RegisterMetrics(reg prometheus.Registerer, e *Engine) error {
	for _, c := range []prometheus.Collector{
		AllocBatches, AllocCollisions, BackfillUpdated, BackfillDuration, e.Collector(),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collector exposes the pebble internals that matter for a single-writer
// registry database: write-ahead log churn, memtable pressure, compaction
// debt.
func (e *Engine) Collector() prometheus.Collector {
	return &dbCollector{
		db: e.db,
		walSize: prometheus.NewDesc(
			"regmint_db_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"regmint_db_wal_bytes_written_total",
			"Total physical bytes written to the WAL",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"regmint_db_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"regmint_db_memtable_count",
			"Current count of memtables",
			nil, nil,
		),
		compactionCount: prometheus.NewDesc(
			"regmint_db_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"regmint_db_compaction_estimated_debt_bytes",
			"Estimated bytes to compact to reach a stable state",
			nil, nil,
		),
	}
}

type dbCollector struct {
	db *pebble.DB

	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
}

func (dc *dbCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- dc.walSize
	ch <- dc.walBytesWritten
	ch <- dc.memtableSize
	ch <- dc.memtableCount
	ch <- dc.compactionCount
	ch <- dc.compactionDebt
}

func (dc *dbCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := dc.db.Metrics()

	ch <- prometheus.MustNewConstMetric(dc.walSize, prometheus.GaugeValue, float64(metrics.WAL.Size))
	ch <- prometheus.MustNewConstMetric(dc.walBytesWritten, prometheus.CounterValue, float64(metrics.WAL.BytesWritten))
	ch <- prometheus.MustNewConstMetric(dc.memtableSize, prometheus.GaugeValue, float64(metrics.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(dc.memtableCount, prometheus.GaugeValue, float64(metrics.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(dc.compactionCount, prometheus.CounterValue, float64(metrics.Compact.Count))
	ch <- prometheus.MustNewConstMetric(dc.compactionDebt, prometheus.GaugeValue, float64(metrics.Compact.EstimatedDebt))
}
