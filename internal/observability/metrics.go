package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "continuity"

// Scan outcomes.
const (
	ScanSeen           = "seen"
	ScanVendorFiltered = "vendor_filtered"
	ScanDuplicate      = "duplicate"
	ScanDecoded        = "decoded"
	ScanDecodeError    = "decode_error"
)

// Advertise outcomes.
const (
	AdvertiseStarted        = "started"
	AdvertiseTooLarge       = "too_large"
	AdvertiseEncodeError    = "encode_error"
	AdvertiseTransportError = "transport_error"
)

var (
	registerOnce sync.Once

	scanAdvertisements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "advertisements_total",
			Help:      "Raw advertisements handled by the scan path, by outcome.",
		},
		[]string{"outcome"},
	)
	eventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "events_delivered_total",
			Help:      "Decoded events delivered to subscribers.",
		},
	)
	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "events_dropped_total",
			Help:      "Decoded events dropped because a subscriber buffer was full.",
		},
	)
	advertiseRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advertise",
			Name:      "requests_total",
			Help:      "Advertise requests, by outcome.",
		},
		[]string{"outcome"},
	)
	sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sessions",
			Help:      "Live engine sessions by kind and state.",
		},
		[]string{"kind", "state"},
	)
	sessionFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "session_faults_total",
			Help:      "Engine sessions that ended faulted, by kind.",
		},
		[]string{"kind"},
	)
	sinkPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "publish_total",
			Help:      "Sink publish attempts.",
		},
		[]string{"sink", "success"},
	)
	identityRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "rotations_total",
			Help:      "Identity rotation attempts.",
		},
		[]string{"success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			scanAdvertisements,
			eventsDelivered,
			eventsDropped,
			advertiseRequests,
			sessions,
			sessionFaults,
			sinkPublishes,
			identityRotations,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordScan(outcome string) {
	RegisterMetrics()
	scanAdvertisements.WithLabelValues(outcome).Inc()
}

func RecordDelivery(delivered bool) {
	RegisterMetrics()
	if delivered {
		eventsDelivered.Inc()
		return
	}
	eventsDropped.Inc()
}

func RecordAdvertise(outcome string) {
	RegisterMetrics()
	advertiseRequests.WithLabelValues(outcome).Inc()
}

// RecordSessionTransition moves one session of kind between state gauges.
// An empty from or to skips that side.
func RecordSessionTransition(kind, from, to string) {
	RegisterMetrics()
	if from != "" {
		sessions.WithLabelValues(kind, from).Dec()
	}
	if to != "" {
		sessions.WithLabelValues(kind, to).Inc()
	}
}

func RecordSessionFault(kind string) {
	RegisterMetrics()
	sessionFaults.WithLabelValues(kind).Inc()
}

func RecordSinkPublish(sink string, success bool) {
	RegisterMetrics()
	sinkPublishes.WithLabelValues(sink, strconv.FormatBool(success)).Inc()
}

func RecordRotation(success bool) {
	RegisterMetrics()
	identityRotations.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
