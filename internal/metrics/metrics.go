package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_provider_api_calls_total",
			Help: "Total upstream provider API calls",
		},
		[]string{"source", "endpoint", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqicast_provider_api_latency_seconds",
			Help:    "Upstream provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "endpoint"},
	)

	DaysIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqicast_days_ingested_total",
			Help: "Total per-date rows merged into the store",
		},
	)

	ForecastsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqicast_forecasts_generated_total",
			Help: "Total 7-day forecast batches generated",
		},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqicast_training_runs_total",
			Help: "Total model training runs",
		},
		[]string{"status"},
	)
)
