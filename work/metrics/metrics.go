package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StreamRequests counts inbound stream-list requests by device class.
var StreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_renamer_requests_total",
	Help: "Number of stream-list requests",
}, []string{"device"})

// StreamsEmitted observes how many entries each reply carried.
var StreamsEmitted = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "stream_renamer_streams_emitted",
	Help:    "Number of streams returned per reply",
	Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
}, []string{"device"})

// UpstreamFetches counts upstream fetches by outcome
// (ok, timeout, network, status, decode, invalid).
var UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_renamer_upstream_fetches_total",
	Help: "Upstream stream-list fetches by outcome",
}, []string{"outcome"})

// UpstreamLatency observes upstream fetch duration in seconds.
var UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "stream_renamer_upstream_fetch_seconds",
	Help:    "Upstream stream-list fetch latency",
	Buckets: prometheus.DefBuckets,
})

// CacheLookups counts response cache lookups by result (hit, miss, shared).
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_renamer_cache_lookups_total",
	Help: "Response cache lookups by result",
}, []string{"result"})

// Resolutions counts HEAD redirect resolutions by outcome
// (redirected, unchanged, failed).
var Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_renamer_resolutions_total",
	Help: "Redirect resolutions by outcome",
}, []string{"outcome"})

// PlaceholderSubstitutions counts placeholder URLs replaced by the fallback video.
var PlaceholderSubstitutions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stream_renamer_placeholder_substitutions_total",
	Help: "Placeholder URLs replaced by the fallback video",
})

// ProxyRedirects counts /proxy requests by outcome (redirected, blocked, invalid, missing).
var ProxyRedirects = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_renamer_proxy_redirects_total",
	Help: "Redirect endpoint requests by outcome",
}, []string{"outcome"})

// Probes counts HLS playlist probes by outcome (ok, failed).
var Probes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_renamer_hls_probes_total",
	Help: "HLS playlist probes by outcome",
}, []string{"outcome"})
