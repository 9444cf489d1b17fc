package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groomload"

// PrometheusObserver exports live run metrics for scraping while a run
// is in progress.
type PrometheusObserver struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	VirtualUsers    prometheus.Gauge
	IterationsTotal *prometheus.CounterVec
	IterationErrors *prometheus.CounterVec
}

// NewPrometheusObserver registers the run metrics on a private registry.
func NewPrometheusObserver() *PrometheusObserver {
	reg := prometheus.NewRegistry()

	o := &PrometheusObserver{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests by label and status code",
			},
			[]string{"label", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds by label",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"label"},
		),
		VirtualUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vus",
				Help:      "Number of live virtual users",
			},
		),
		IterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_total",
				Help:      "Total number of scenario iterations",
			},
			[]string{"scenario"},
		),
		IterationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iteration_errors_total",
				Help:      "Total number of failed scenario iterations",
			},
			[]string{"scenario"},
		),
	}

	reg.MustRegister(o.RequestsTotal, o.RequestDuration, o.VirtualUsers, o.IterationsTotal, o.IterationErrors)
	return o
}

func (o *PrometheusObserver) ObserveRequest(out RequestOutcome) {
	o.RequestsTotal.WithLabelValues(out.Label, strconv.Itoa(out.StatusCode)).Inc()
	o.RequestDuration.WithLabelValues(out.Label).Observe(out.Duration.Seconds())
}

func (o *PrometheusObserver) ObserveActiveVUs(n int) {
	o.VirtualUsers.Set(float64(n))
}

func (o *PrometheusObserver) ObserveIteration(scenario string, err error) {
	o.IterationsTotal.WithLabelValues(scenario).Inc()
	if err != nil {
		o.IterationErrors.WithLabelValues(scenario).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

var _ Observer = (*PrometheusObserver)(nil)
