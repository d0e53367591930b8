// Package metrics provides Prometheus metrics for the pipeline workers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "txnflow"

// Metrics holds every pipeline collector. A nil *Metrics is valid and
// records nothing, so workers can run without a registry.
type Metrics struct {
	// Producer
	ChunksProduced prometheus.Counter
	RowsProduced   prometheus.Counter
	Checkpoint     prometheus.Gauge
	ProducerState  *prometheus.GaugeVec

	// Consumer
	ObjectsIngested prometheus.Counter
	RowsInserted    prometheus.Counter
	RowsSkipped     prometheus.Counter
	Detections      *prometheus.CounterVec
	BatchesUploaded prometheus.Counter
	CycleDuration   prometheus.Histogram

	ErrorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ChunksProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_produced_total",
		Help:      "Chunk objects written to the object store",
	})
	m.RowsProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_produced_total",
		Help:      "Source rows written in chunk objects",
	})
	m.Checkpoint = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "checkpoint_next_row",
		Help:      "Index of the next source row the producer will emit",
	})
	m.ProducerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "producer_state",
		Help:      "1 for the producer's current state, 0 otherwise",
	}, []string{"state"})

	m.ObjectsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "objects_ingested_total",
		Help:      "Chunk objects fully ingested by the consumer",
	})
	m.RowsInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_inserted_total",
		Help:      "Transaction rows newly inserted",
	})
	m.RowsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_skipped_total",
		Help:      "Malformed chunk rows skipped during ingestion",
	})
	m.Detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detections_total",
		Help:      "New detections by pattern",
	}, []string{"pattern"})
	m.BatchesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detection_batches_uploaded_total",
		Help:      "Detection batches written to the output prefix",
	})
	m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "consumer_cycle_duration_seconds",
		Help:      "Duration of consumer poll/ingest/detect/dispatch cycles",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Worker errors by stage",
	}, []string{"stage"})

	m.registry.MustRegister(
		m.ChunksProduced,
		m.RowsProduced,
		m.Checkpoint,
		m.ProducerState,
		m.ObjectsIngested,
		m.RowsInserted,
		m.RowsSkipped,
		m.Detections,
		m.BatchesUploaded,
		m.CycleDuration,
		m.ErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ChunkProduced records a written chunk and the new checkpoint.
func (m *Metrics) ChunkProduced(rows, nextRow int) {
	if m == nil {
		return
	}
	m.ChunksProduced.Inc()
	m.RowsProduced.Add(float64(rows))
	m.Checkpoint.Set(float64(nextRow))
}

// SetProducerState marks state as the current one among states.
func (m *Metrics) SetProducerState(state string, states ...string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.ProducerState.WithLabelValues(s).Set(0)
	}
	m.ProducerState.WithLabelValues(state).Set(1)
}

// ObjectIngested records one fully ingested chunk object.
func (m *Metrics) ObjectIngested(inserted, skipped int) {
	if m == nil {
		return
	}
	m.ObjectsIngested.Inc()
	m.RowsInserted.Add(float64(inserted))
	m.RowsSkipped.Add(float64(skipped))
}

// DetectionsInserted records new detections for a pattern.
func (m *Metrics) DetectionsInserted(pattern string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Detections.WithLabelValues(pattern).Add(float64(n))
}

// BatchUploaded records one dispatched detection batch.
func (m *Metrics) BatchUploaded() {
	if m == nil {
		return
	}
	m.BatchesUploaded.Inc()
}

// ObserveCycle records the duration of a consumer cycle in seconds.
func (m *Metrics) ObserveCycle(seconds float64) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
}

// Error counts a failed stage.
func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}
