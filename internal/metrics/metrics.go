// Package metrics records the outcome of a sync run as Prometheus gauges.
//
// espisync runs as a short-lived job, so nothing is served over HTTP. The
// registry is written to a node_exporter textfile collector directory when
// metrics.textfile is configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the gauges for one run. A nil *Recorder discards everything.
type Recorder struct {
	reg *prometheus.Registry

	feedBytes      prometheus.Gauge
	readings       prometheus.Gauge
	pointsWritten  *prometheus.GaugeVec
	success        prometheus.Gauge
	failedStage    *prometheus.GaugeVec
	lastRun        prometheus.Gauge
	runDurationSec prometheus.Gauge
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		feedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "espisync_feed_bytes",
			Help: "Size of the usage feed fetched by the last run.",
		}),
		readings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "espisync_readings",
			Help: "Interval readings parsed by the last run.",
		}),
		pointsWritten: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "espisync_points_written",
			Help: "Readings accepted per sink by the last run.",
		}, []string{"sink"}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Name: "espisync_last_run_success",
			Help: "1 if the last run completed without error, 0 otherwise.",
		}),
		failedStage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "espisync_last_run_failed",
			Help: "1 for the pipeline stage the last run failed in.",
		}, []string{"stage"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "espisync_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		runDurationSec: factory.NewGauge(prometheus.GaugeOpts{
			Name: "espisync_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// FeedFetched records the size of the downloaded document.
func (r *Recorder) FeedFetched(size int) {
	if r == nil {
		return
	}
	r.feedBytes.Set(float64(size))
}

// ReadingsParsed records how many readings the feed produced.
func (r *Recorder) ReadingsParsed(n int) {
	if r == nil {
		return
	}
	r.readings.Set(float64(n))
}

// PointsWritten records how many readings a sink accepted.
func (r *Recorder) PointsWritten(sink string, n int) {
	if r == nil {
		return
	}
	r.pointsWritten.WithLabelValues(sink).Set(float64(n))
}

// RunFinished records the outcome. failedStage is empty on success.
func (r *Recorder) RunFinished(started, finished time.Time, failedStage string) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(finished.Unix()))
	r.runDurationSec.Set(finished.Sub(started).Seconds())
	if failedStage == "" {
		r.success.Set(1)
		return
	}
	r.success.Set(0)
	r.failedStage.WithLabelValues(failedStage).Set(1)
}

// WriteTextfile writes the registry in text exposition format, replacing
// path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
