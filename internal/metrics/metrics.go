// Package metrics holds every Prometheus metric greyd exports, grouped
// the way internal/escrow/metrics.go groups a subsystem's metrics into a
// single struct of pre-registered collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the daemon. A single
// instance is built at startup and threaded through every subsystem that
// reports observability data; none of it feeds back into a verdict.
type Metrics struct {
	registry *prometheus.Registry

	Verdicts       *prometheus.CounterVec
	OracleEvents   *prometheus.CounterVec
	OracleLatency  prometheus.Histogram
	RingFillRatio  *prometheus.GaugeVec
	RingRotations  prometheus.Counter
	QueueDepth     prometheus.Gauge
	QueueDrops     *prometheus.CounterVec
	PeerLinkState  *prometheus.GaugeVec
	PeerSyncsSent  *prometheus.CounterVec
	PeerSyncsRecv  *prometheus.CounterVec
	WorkersBusy    prometheus.Gauge
	WorkersDropped prometheus.Counter
}

// New registers and returns the full metric set against a private
// registry (not the global default), so multiple Metrics instances can
// coexist in the same process — every subsystem test constructs its own.
// internal/admin exposes Registry() via promhttp for the real daemon.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greyd_verdicts_total",
			Help: "Classification verdicts returned, by kind (match, gray, trust).",
		}, []string{"verdict"}),

		OracleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greyd_oracle_events_total",
			Help: "Reputation oracle outcomes, by kind (clean, suspicious, timeout, error).",
		}, []string{"result"}),

		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "greyd_oracle_latency_seconds",
			Help:    "Reputation oracle call latency.",
			Buckets: prometheus.DefBuckets,
		}),

		RingFillRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greyd_ring_fill_ratio",
			Help: "Fraction of bits set per ring filter slot.",
		}, []string{"slot"}),

		RingRotations: f.NewCounter(prometheus.CounterOpts{
			Name: "greyd_ring_rotations_total",
			Help: "Number of ring rotations performed.",
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "greyd_update_queue_depth",
			Help: "Number of messages currently buffered in the update queue.",
		}),

		QueueDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greyd_update_queue_drops_total",
			Help: "Messages rejected by the update queue, by producer kind.",
		}, []string{"producer"}),

		PeerLinkState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greyd_peer_link_state",
			Help: "Peer link state (0=disconnected, 1=connected, 2=in_sync).",
		}, []string{"peer"}),

		PeerSyncsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greyd_peer_syncs_sent_total",
			Help: "Syncs sent to the peer, by kind (operational, aggregate).",
		}, []string{"kind"}),

		PeerSyncsRecv: f.NewCounterVec(prometheus.CounterOpts{
			Name: "greyd_peer_syncs_received_total",
			Help: "Syncs received from the peer, by kind (operational, aggregate).",
		}, []string{"kind"}),

		WorkersBusy: f.NewGauge(prometheus.GaugeOpts{
			Name: "greyd_workers_busy",
			Help: "Worker permits currently checked out.",
		}),

		WorkersDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "greyd_workers_dropped_total",
			Help: "Requests dropped because the worker semaphore was exhausted.",
		}),
	}
}

// Registry returns the private registry this Metrics instance registered
// against, for mounting under promhttp.HandlerFor in internal/admin.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
