package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	presetLabel = "preset"
)

var (
	regionCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "region_count",
		Help: "The number of active regions.",
	}, []string{presetLabel})

	regionCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "region_count_total",
		Help: "The total number of regions.",
	}, []string{presetLabel})

	regionFrameRebuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "region_frame_rebuild_seconds",
		Help:    "The time spent rebuilding the grid index of a region at each frame.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	regionQueryCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "region_query_candidates",
		Help:    "The number of entities returned by the grid index for a region query.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func instrumentIncreaseRegionGauge(preset string) {
	regionCount.
		With(prometheus.Labels{presetLabel: preset}).
		Inc()
}

func instrumentDecreaseRegionGauge(preset string) {
	regionCount.
		With(prometheus.Labels{presetLabel: preset}).
		Dec()
}

func instrumentCountRegion(preset string) {
	regionCountTotal.
		With(prometheus.Labels{presetLabel: preset}).
		Inc()
}

func instrumentFrameRebuild(d time.Duration) {
	regionFrameRebuildSeconds.Observe(d.Seconds())
}

func instrumentQueryCandidates(n int) {
	regionQueryCandidates.Observe(float64(n))
}
