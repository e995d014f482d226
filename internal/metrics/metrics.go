package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orders"

// Server holds the HTTP collectors.
type Server struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// Reconcile holds the order-lifecycle collectors.
type Reconcile struct {
	Transitions *prometheus.CounterVec // by source, to
	Noops       *prometheus.CounterVec // by source
	PollErrors  prometheus.Counter
	Checkouts   *prometheus.CounterVec // by result
}

func NewServer(reg prometheus.Registerer, service string) *Server {
	m := &Server{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS)
	return m
}

func NewReconcile(reg prometheus.Registerer) *Reconcile {
	m := &Reconcile{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Order status transitions applied, by trigger and target status.",
		}, []string{"source", "to"}),
		Noops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_noops_total",
			Help:      "Gateway statuses that left the order unchanged.",
		}, []string{"source"}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_poll_errors_total",
			Help:      "Invoice status polls that failed and were skipped.",
		}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Transitions, m.Noops, m.PollErrors, m.Checkouts)
	return m
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
