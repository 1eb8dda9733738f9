package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ExtractionsTotal     *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	CandidatesRejected   *prometheus.CounterVec
	ImagesExtracted      prometheus.Histogram
	ClassificationsTotal *prometheus.CounterVec
	CacheLookupsTotal    *prometheus.CounterVec
}

// New registers every metric on reg. Pass prometheus.DefaultRegisterer in production
// and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractions_total",
				Help: "Total number of extraction runs.",
			},
			[]string{"status", "error_kind"}, // status: success, failure, cached
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "page_fetch_duration_seconds",
				Help:    "Duration of product page fetches.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"domain"},
		),
		CandidatesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_candidates_rejected_total",
				Help: "Image candidates dropped by the validator.",
			},
			[]string{"reason"},
		),
		ImagesExtracted: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "images_extracted",
				Help:    "Number of images returned per successful extraction.",
				Buckets: []float64{0, 1, 3, 6, 12, 25, 50},
			},
		),
		ClassificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_classifications_total",
				Help: "Image classifications by outcome.",
			},
			[]string{"outcome"}, // classified, fallback
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_lookups_total",
				Help: "Result cache lookups by result.",
			},
			[]string{"result"}, // hit, miss, error
		),
	}
}
