package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vodpack",
		Name:      "uploads_total",
		Help:      "Total accepted upload requests.",
	})

	PipelineFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vodpack",
		Name:      "pipeline_failures_total",
		Help:      "Total pipeline failures by stage.",
	}, []string{"stage"})

	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vodpack",
		Name:      "pipeline_duration_seconds",
		Help:      "End-to-end processing duration per upload in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	TranscodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vodpack",
		Name:      "transcode_duration_seconds",
		Help:      "Duration of single rendition transcodes in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"height"})

	SegmentsProducedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vodpack",
		Name:      "segments_produced_total",
		Help:      "Total segment files produced across all variants.",
	})

	AssetsCommittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vodpack",
		Name:      "assets_committed_total",
		Help:      "Total manifests committed to the store.",
	})

	VariantSwitchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vodpack",
		Name:      "variant_switches_total",
		Help:      "Total playback variant switches by reason.",
	}, []string{"reason"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vodpack",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		UploadsTotal,
		PipelineFailuresTotal,
		PipelineDuration,
		TranscodeDuration,
		SegmentsProducedTotal,
		AssetsCommittedTotal,
		VariantSwitchesTotal,
		HTTPRequestsTotal,
	)
}
