package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Scrape requests handled, by outcome",
		},
		[]string{"outcome"},
	)
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_fetch_duration_seconds",
			Help:    "Time spent fetching target URLs",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Start registers the collectors and serves /metrics on its own listener.
// An empty addr disables the listener; the collectors still work so callers
// never have to guard their observations.
func Start(addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	prometheus.MustRegister(RequestsTotal, FetchDuration)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving Prometheus metrics")
}
