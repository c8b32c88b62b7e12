package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfeed_polls_total",
		Help: "Total poll cycles per stream",
	}, []string{"stream", "result"}) // stream: completed, in_progress, reconcile; result: success, fail

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventfeed_fetch_duration_seconds",
		Help:    "Duration of remote event fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	NormalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfeed_normalize_attempts_total",
		Help: "Normalization strategy attempts by outcome",
	}, []string{"strategy", "result"})

	NormalizeRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventfeed_normalize_retries_total",
		Help: "Full request retries triggered by a version-targeted normalization failure",
	})

	VersionProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfeed_version_probes_total",
		Help: "Version probe outcomes",
	}, []string{"result"}) // "resolved", "fallback"

	WorkingSetSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eventfeed_working_set_size",
		Help: "Events currently held per working set",
	}, []string{"stream"})

	FinishedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventfeed_finished_events_total",
		Help: "In-progress events observed transitioning to completed",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventfeed_ws_subscribers",
		Help: "Connected websocket subscribers",
	})

	ThumbnailCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfeed_thumbnail_cache_total",
		Help: "Thumbnail proxy cache lookups",
	}, []string{"result"}) // "hit", "miss"
)
