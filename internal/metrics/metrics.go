package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
	"time"
)

var (
	reservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_reservations_total",
			Help: "Inventory reservation attempts by target kind and outcome",
		},
		[]string{"target", "outcome"},
	)

	releasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_releases_total",
			Help: "Inventory reservations released back to stock",
		},
		[]string{"target"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_status_transitions_total",
			Help: "Applied status transitions",
		},
		[]string{"kind", "from", "to"},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_cache_requests_total",
			Help: "Read cache lookups by result",
		},
		[]string{"result"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(reservationsTotal)
	prometheus.MustRegister(releasesTotal)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(cacheRequestsTotal)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

func RecordReservation(target, outcome string) {
	reservationsTotal.WithLabelValues(target, outcome).Inc()
}

func RecordRelease(target string) {
	releasesTotal.WithLabelValues(target).Inc()
}

func RecordTransition(kind, from, to string) {
	transitionsTotal.WithLabelValues(kind, from, to).Inc()
}

func RecordCache(hit bool) {
	if hit {
		cacheRequestsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheRequestsTotal.WithLabelValues("miss").Inc()
}

func RecordHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func Handler() http.Handler { return promhttp.Handler() }
