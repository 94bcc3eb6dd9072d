// Package telemetry holds the prometheus collectors of a murmur process: the
// gossip counters of each node (gossip.go) and the HTTP service metrics
// (this file). Everything is registered on Registry, which the service
// exposes on /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "murmur"

// Registry holds every murmur collector. The prometheus default registry is
// left alone.
var Registry = prometheus.NewRegistry()

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status class.",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving HTTP requests, including the wait on the node loop.",
			// 100us .. ~3s, a read waits at most one loop iteration
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9),
		},
		[]string{"route"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests being served.",
		},
		[]string{"route"},
	)

	nodeInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Constant 1, labelled with the version and the settings the process runs with.",
		},
		[]string{"version", "transport", "topology"},
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlight,
		nodeInfo,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// SetInfo publishes the version and the main settings of the process.
func SetInfo(version, transport, topology string) {
	nodeInfo.Reset()
	nodeInfo.WithLabelValues(version, transport, topology).Set(1)
}

// MetricsHandler serves Registry in the prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records the requests served by next under route.
func Instrument(route string, next http.Handler) http.Handler {
	inFlight := InFlight.WithLabelValues(route)
	duration := RequestDuration.WithLabelValues(route)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		inFlight.Inc()
		start := time.Now()

		next.ServeHTTP(rec, r)

		duration.Observe(time.Since(start).Seconds())
		inFlight.Dec()

		RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status/100)+"xx").Inc()
	})
}
