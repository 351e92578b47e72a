package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the signaling hub.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	admissionsTotal   *prometheus.CounterVec
	relayedTotal      *prometheus.CounterVec
	backpressureTotal prometheus.Counter
	connections       prometheus.Gauge
	rooms             prometheus.Gauge
}

// New creates and registers Prometheus metrics for the hub.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	admissionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_admissions_total",
		Help: "Join requests by outcome",
	}, []string{"result"})
	relayedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_relayed_messages_total",
		Help: "Negotiation messages relayed between participants",
	}, []string{"type"})
	backpressureTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_backpressure_total",
		Help: "Frames that could not be queued because a send buffer was full",
	})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_connections",
		Help: "Number of live signaling connections",
	})
	rooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_rooms",
		Help: "Number of live rooms",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		admissionsTotal,
		relayedTotal,
		backpressureTotal,
		connections,
		rooms,
	)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
		admissionsTotal:   admissionsTotal,
		relayedTotal:      relayedTotal,
		backpressureTotal: backpressureTotal,
		connections:       connections,
		rooms:             rooms,
	}
}

func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncAdmission counts one join outcome (admitted, queued, rejected).
func (m *Metrics) IncAdmission(result string) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRelayed(msgType string) {
	if m == nil {
		return
	}
	m.relayedTotal.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncBackpressure() {
	if m == nil {
		return
	}
	m.backpressureTotal.Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
