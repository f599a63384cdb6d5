package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics.
var (
	checkinOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_attempts_total",
			Help: "Check-in attempts by terminal outcome.",
		},
		[]string{"outcome"},
	)

	syncBatchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_batch_items_total",
			Help: "Offline batch items by reconciliation result.",
		},
		[]string{"result"},
	)

	fanoutSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_subscribers",
		Help: "Currently connected fanout subscribers.",
	})

	fanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_dropped_messages_total",
		Help: "Messages dropped because a subscriber was too slow.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		checkinOutcomes, syncBatchItems, fanoutSubscribers, fanoutDropped,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheckin counts a terminal check-in outcome ("accepted", "duplicate",
// "rejected").
func ObserveCheckin(outcome string) {
	checkinOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveSyncItem counts an offline batch item result.
func ObserveSyncItem(result string) {
	syncBatchItems.WithLabelValues(result).Inc()
}

// SubscriberConnected / SubscriberGone track the fanout gauge.
func SubscriberConnected() { fanoutSubscribers.Inc() }
func SubscriberGone()      { fanoutSubscribers.Dec() }

// MessageDropped counts a slow-subscriber drop.
func MessageDropped() { fanoutDropped.Inc() }

// CanonicalPath collapses resource identifiers out of a request path so the
// metrics labels stay low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/events/"); ok {
		if idx := strings.IndexByte(rest, '/'); idx > 0 {
			return "/v1/events/:id" + rest[idx:]
		}
		if rest != "" {
			return "/v1/events/:id"
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for the metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
