package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the backend client.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	ErrorTotal      *prometheus.CounterVec
	Connected       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// unregistered local registry when the caller does not export metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aa_client_request_duration_seconds",
			Help:    "Latency of backend API calls.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "outcome"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aa_client_errors_total",
			Help: "Backend API failures by kind.",
		}, []string{"kind"}), // connection, timeout, protocol, remote

		Connected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aa_backend_connected",
			Help: "1 when the last health check reported a healthy backend.",
		}),
	}
}
