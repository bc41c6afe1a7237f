package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for a single batch run.
// Each Metrics owns its registry so that batch runs and tests never collide on
// the default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	FramesLoaded     prometheus.Counter
	FeaturesDetected prometheus.Counter
	CellsLinked      prometheus.Counter
	TracksGrouped    prometheus.Counter
	ImagesRendered   prometheus.Counter
	FilesWritten     *prometheus.CounterVec   // labels: kind={features,mask,track,merged,png,html}
	StageDuration    *prometheus.HistogramVec // labels: stage
	LastRunSuccess   prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// NewMetrics creates and registers all run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FramesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "frames_loaded_total",
			Help:      "Composite reflectivity frames loaded from the input grids.",
		}),
		FeaturesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "features_detected_total",
			Help:      "Features found by multi-threshold detection.",
		}),
		CellsLinked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "cells_linked_total",
			Help:      "Cells kept after linking and stub filtering.",
		}),
		TracksGrouped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "tracks_grouped_total",
			Help:      "Tracks formed by merge/split grouping of cells.",
		}),
		ImagesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "images_rendered_total",
			Help:      "Overlay images written by the plot workflow.",
		}),
		FilesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "files_written_total",
			Help:      "Output files written by kind.",
		}, []string{"kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "celltrack",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each workflow stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}, []string{"stage"}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "celltrack",
			Name:      "last_run_success",
			Help:      "1 when the most recent run finished without error.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "celltrack",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}

	m.Registry.MustRegister(
		m.FramesLoaded,
		m.FeaturesDetected,
		m.CellsLinked,
		m.TracksGrouped,
		m.ImagesRendered,
		m.FilesWritten,
		m.StageDuration,
		m.LastRunSuccess,
		m.LastRunTimestamp,
	)
	return m
}

// ObserveStage records the duration of a named stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// FileWritten increments the output counter for kind.
func (m *Metrics) FileWritten(kind string) {
	if m == nil {
		return
	}
	m.FilesWritten.WithLabelValues(kind).Inc()
}

// Finish stamps the run outcome.
func (m *Metrics) Finish(at time.Time, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the text exposition format, suitable
// for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
