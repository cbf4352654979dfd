// Package metrics holds the Prometheus collectors for the classify endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Requests    *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	CacheHits   prometheus.Counter
	Predictions *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecosort_classify_requests_total",
			Help: "Classify requests by HTTP status code",
		}, []string{"code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecosort_classify_duration_seconds",
			Help:    "Time spent classifying an image",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"provider"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecosort_prediction_cache_hits_total",
			Help: "Predictions served from the cache",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecosort_predictions_total",
			Help: "Successful predictions by label",
		}, []string{"classification"}),
	}

	reg.MustRegister(
		m.Requests,
		m.Latency,
		m.CacheHits,
		m.Predictions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
