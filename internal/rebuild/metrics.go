package rebuild

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "rowindex"
	subsystem = "rebuild"
)

// Metrics holds Prometheus metrics for rebuild runs.
//
// Collectors live in a private registry: a run is a short-lived process, so
// the registry is written once to a node_exporter textfile instead of being
// scraped.
//
// Metrics:
//   - rowindex_rebuild_rows_fetched - rows read from the source
//   - rowindex_rebuild_documents_written_total - documents committed
//   - rowindex_rebuild_batches_written_total - Add calls that succeeded
//   - rowindex_rebuild_batch_size - histogram of batch sizes
//   - rowindex_rebuild_stage_duration_seconds{stage} - time spent per stage
//   - rowindex_rebuild_embedding_dimension - vector length of the run
//   - rowindex_rebuild_last_run_success - 1 if the run reached Done
//   - rowindex_rebuild_last_run_timestamp_seconds - unix time the run ended
type Metrics struct {
	registry *prometheus.Registry

	RowsFetched        prometheus.Gauge
	DocumentsWritten   prometheus.Counter
	BatchesWritten     prometheus.Counter
	BatchSize          prometheus.Histogram
	StageDuration      *prometheus.GaugeVec
	EmbeddingDimension prometheus.Gauge
	LastRunSuccess     prometheus.Gauge
	LastRunTimestamp   prometheus.Gauge
}

// NewMetrics creates the collectors in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RowsFetched: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_fetched",
			Help:      "Number of rows read from the source in the last run",
		}),
		DocumentsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "documents_written_total",
			Help:      "Total number of documents written to the destination collection",
		}),
		BatchesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_written_total",
			Help:      "Total number of batches written to the destination collection",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_size",
			Help:      "Number of documents per written batch",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 7), // 10 .. 40960
		}),
		StageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage of the last run",
		}, []string{"stage"}),
		EmbeddingDimension: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "embedding_dimension",
			Help:      "Embedding vector length used by the last run",
		}),
		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_run_success",
			Help:      "1 if the last run completed, 0 otherwise",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run ended",
		}),
	}
}

// Registry returns the registry holding the run metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in Prometheus text format. The file is
// written to a temporary name and renamed, so collectors never read a partial
// file.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// All recorders are nil-safe so a Pipeline can run without metrics.

func (m *Metrics) observeStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

func (m *Metrics) observeFetched(rows int) {
	if m == nil {
		return
	}
	m.RowsFetched.Set(float64(rows))
}

func (m *Metrics) observeDimension(dim int) {
	if m == nil {
		return
	}
	m.EmbeddingDimension.Set(float64(dim))
}

func (m *Metrics) observeBatch(size int) {
	if m == nil {
		return
	}
	m.BatchesWritten.Inc()
	m.DocumentsWritten.Add(float64(size))
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) observeRun(res *Result, end time.Time) {
	if m == nil {
		return
	}
	if res.State == StateDone {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
	m.LastRunTimestamp.Set(float64(end.Unix()))
}
