// Package metrics exposes Prometheus collectors for the recording pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reel"

// Metrics holds the pipeline collectors. All of them are safe for concurrent use,
// so the front-end and the writer goroutine share one instance.
type Metrics struct {
	ChunksWritten   *prometheus.CounterVec
	ChunkBytes      *prometheus.CounterVec
	EntriesWritten  *prometheus.CounterVec
	EntriesRejected *prometheus.CounterVec
	HandOffs        *prometheus.CounterVec
	Recordings      *prometheus.CounterVec
	ChunkSize       prometheus.Histogram
}

// Recording outcomes used as the "result" label of Recordings.
const (
	RESULT_FINALIZED = "finalized"
	RESULT_DISCARDED = "discarded"
	RESULT_FAILED    = "failed"
)

func New() *Metrics {
	return &Metrics{
		ChunksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Chunks appended to recordings.",
		}, []string{"stream"}),
		ChunkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Compressed chunk bytes appended to recordings.",
		}, []string{"stream"}),
		EntriesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_written_total",
			Help:      "Ticks written inside chunks.",
		}, []string{"stream"}),
		EntriesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_rejected_total",
			Help:      "Entries dropped by the recorder because they were too old.",
		}, []string{"stream"}),
		HandOffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Buffered spans handed from the recorder to the writer.",
		}, []string{"stream"}),
		Recordings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Recordings by outcome.",
		}, []string{"result"}),
		ChunkSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_size_bytes",
			Help:      "Size of encoded chunks.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.ChunksWritten,
		m.ChunkBytes,
		m.EntriesWritten,
		m.EntriesRejected,
		m.HandOffs,
		m.Recordings,
		m.ChunkSize,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
