// Package metrics holds the Prometheus collectors of the bot.
//
// Label values are drawn from small fixed sets (update kinds, pipeline
// outcomes, reminder outcomes) so cardinality stays bounded. All collectors are
// registered with the default registry and are safe for concurrent use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Updates counts classified inbound updates by kind.
	Updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imusic_updates_total",
			Help: "Inbound Telegram updates by kind.",
		},
		[]string{"kind"},
	)

	// PipelineResults counts song requests by outcome.
	PipelineResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imusic_pipeline_results_total",
			Help: "Song requests by outcome (ok, duplicate, credentials, not_found, download, send).",
		},
		[]string{"outcome"},
	)

	// PipelineDuration records how long a download-and-tag run took.
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imusic_pipeline_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	// Reminders counts idle reminder attempts by outcome.
	Reminders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imusic_reminders_total",
			Help: "Idle reminders by outcome (sent, failed).",
		},
		[]string{"outcome"},
	)

	// ActiveChats gauges the size of the reminder set after each tick.
	ActiveChats = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imusic_active_chats",
			Help: "Chats eligible for idle reminders.",
		},
	)
)

func init() {
	prometheus.MustRegister(Updates, PipelineResults, PipelineDuration, Reminders, ActiveChats)
}

// ObservePipeline records a finished pipeline run.
func ObservePipeline(start time.Time, outcome string) {
	PipelineDuration.Observe(time.Since(start).Seconds())
	PipelineResults.WithLabelValues(outcome).Inc()
}
