package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CardCacheLookups counts card cache lookups by result (hit|miss|error).
	CardCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcard_card_cache_lookups_total",
			Help: "Total number of card cache lookups",
		},
		[]string{"result"},
	)

	// CardFetches counts upstream page fetches by result (success|blocked|transport|status|read|invalid_url).
	CardFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcard_card_fetches_total",
			Help: "Total number of upstream page fetches",
		},
		[]string{"result"},
	)

	// CardFetchDuration measures upstream fetch latency.
	CardFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkcard_card_fetch_duration_seconds",
			Help:    "Upstream page fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
	)

	// Clicks counts recorded card click-throughs.
	Clicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkcard_clicks_total",
			Help: "Total number of recorded card clicks",
		},
	)

	// FeedRefreshes counts friend-link feed refreshes by result (success|failure).
	FeedRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcard_feed_refresh_total",
			Help: "Total number of friend-link feed refreshes",
		},
		[]string{"result"},
	)

	// AuthAttempts records admin login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkcard_auth_attempts_total",
			Help: "Total number of admin authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkcard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
