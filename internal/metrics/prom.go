package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "jsbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "host"},
		},
		[]string{"date", "sha", "version"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbridge_messages_sent_total",
			Help: "Messages delivered to the page, by role",
		},
		[]string{"role"},
	)

	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbridge_messages_received_total",
			Help: "Messages received from the page, by role",
		},
		[]string{"role"},
	)

	bridgeAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbridge_anomalies_total",
			Help: "Protocol anomalies absorbed by the bridge",
		},
		[]string{"kind"},
	)

	pendingCallbacks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jsbridge_pending_callbacks",
			Help: "Callbacks waiting for a response",
		},
	)

	startupBuffered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jsbridge_startup_buffered_messages",
			Help: "Messages held until the page signals ready",
		},
	)

	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsbridge_handler_duration_seconds",
			Help:    "Time spent inside request handlers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)
)

// Anomaly kinds recorded by RecordAnomaly.
const (
	AnomalyMalformedBatch    = "malformed_batch"
	AnomalyUnmatchedResponse = "unmatched_response"
	AnomalyTransportFailure  = "transport_failure"
	AnomalyExpiredCallback   = "expired_callback"
	AnomalyHandlerPanic      = "handler_panic"
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, messagesSent, messagesReceived, bridgeAnomalies, pendingCallbacks, startupBuffered, handlerDuration)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordSent increments the outbound message counter.
func RecordSent(role string) {
	messagesSent.WithLabelValues(role).Inc()
}

// RecordReceived increments the inbound message counter.
func RecordReceived(role string) {
	messagesReceived.WithLabelValues(role).Inc()
}

// RecordAnomaly counts an absorbed protocol anomaly.
func RecordAnomaly(kind string) {
	bridgeAnomalies.WithLabelValues(kind).Inc()
}

// SetPendingCallbacks reports the number of parked callbacks.
func SetPendingCallbacks(n int) {
	pendingCallbacks.Set(float64(n))
}

// SetStartupBuffered reports the number of messages waiting for ready.
func SetStartupBuffered(n int) {
	startupBuffered.Set(float64(n))
}

// ObserveHandlerDuration records how long a handler ran. Requests routed to
// the default handler use the label "default".
func ObserveHandlerDuration(handler string, d time.Duration) {
	if handler == "" {
		handler = "default"
	}
	handlerDuration.WithLabelValues(handler).Observe(d.Seconds())
}
