package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Units of work per stage: one feed source, one search query, one synthesis group
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countywire_units_total",
			Help: "Units of work processed, by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// Row-level write results
	ItemsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countywire_items_written_total",
			Help: "Item write results, by stage and result",
		},
		[]string{"stage", "result"},
	)

	StoriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "countywire_stories_total",
			Help: "Synthesis groups by final state and reason",
		},
		[]string{"state", "reason"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "countywire_generation_duration_seconds",
			Help:    "Latency of story generation calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "countywire_run_duration_seconds",
			Help:    "Wall time of a full pass, by stage",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"stage"},
	)

	// Unix time of the last finished pass
	LastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "countywire_last_run_timestamp_seconds",
			Help: "Unix time the last pass of a stage finished",
		},
		[]string{"stage"},
	)

	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "countywire_application_info",
			Help: "Application information",
		},
		[]string{"component", "version"},
	)
)

// Init publishes the component identity.
func Init(component, version string) {
	ApplicationInfo.WithLabelValues(component, version).Set(1)
}
