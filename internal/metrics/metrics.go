package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the pipeline collectors. All of them are registered on the
// registry handed to New, so tests can use an isolated registry.
type Metrics struct {
	Registry *prometheus.Registry

	PacketsCaptured prometheus.Counter
	PacketsDropped  *prometheus.CounterVec
	ParseErrors     prometheus.Counter
	QueueDepth      prometheus.Gauge

	FlowsActive     prometheus.Gauge
	FlowsEvicted    *prometheus.CounterVec
	FlushesDeferred prometheus.Counter

	Predictions      *prometheus.CounterVec
	ClassifierErrors *prometheus.CounterVec
	PredictLatency   *prometheus.HistogramVec

	EventsDropped   *prometheus.CounterVec
	EventsPersisted prometheus.Counter
	WSClients       prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		PacketsCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "flowguard_packets_captured_total",
			Help: "Total number of packets read from the capture source",
		}),
		PacketsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowguard_packets_dropped_total",
			Help: "Packets not processed, by reason",
		}, []string{"reason"}),
		ParseErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "flowguard_parse_errors_total",
			Help: "Packets skipped because their L3 header could not be decoded",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "flowguard_ingest_queue_depth",
			Help: "Packets waiting in the ingest queue",
		}),
		FlowsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "flowguard_flows_active",
			Help: "Number of flows currently tracked",
		}),
		FlowsEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowguard_flows_evicted_total",
			Help: "Flows evicted from the table, by trigger",
		}, []string{"reason"}),
		FlushesDeferred: f.NewCounter(prometheus.CounterOpts{
			Name: "flowguard_flushes_deferred_total",
			Help: "Threshold flushes left to the expiry scanner because no flush slot was free",
		}),
		Predictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowguard_predictions_total",
			Help: "Classified events, by model and label",
		}, []string{"model", "label"}),
		ClassifierErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowguard_classifier_errors_total",
			Help: "Failed classifier calls, by model",
		}, []string{"model"}),
		PredictLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowguard_predict_duration_seconds",
			Help:    "Latency of classifier calls",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"model"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowguard_events_dropped_total",
			Help: "Events dropped by the sink, by stage",
		}, []string{"stage"}),
		EventsPersisted: f.NewCounter(prometheus.CounterOpts{
			Name: "flowguard_events_persisted_total",
			Help: "Events written to the event store",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "flowguard_websocket_clients",
			Help: "Connected WebSocket subscribers",
		}),
	}
}

// Discard returns collectors bound to a private registry nobody scrapes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
