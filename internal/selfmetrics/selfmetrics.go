// Package selfmetrics exposes the telemetry core's own operational
// counters and gauges over Prometheus, grounded on the "private
// registry per instance" pattern from the retrieved corpus so that
// multiple Service instances in one process (as in tests) don't
// collide on the default global registerer.
package selfmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the core's self-observability instruments: sensor
// reads, report scans, and threshold commits, each broken down by the
// dimension a dashboard would actually filter on.
type Registry struct {
	reg *prometheus.Registry

	SensorReadsTotal      *prometheus.CounterVec
	SensorReadErrorsTotal *prometheus.CounterVec
	ReportScansTotal      *prometheus.CounterVec
	ReportScanDuration    *prometheus.HistogramVec
	ReportsActive         prometheus.Gauge
	TriggersActive        prometheus.Gauge
	ThresholdCommitsTotal *prometheus.CounterVec
}

// New builds a Registry bound to a fresh, private prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SensorReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetryd",
			Name:      "sensor_reads_total",
			Help:      "Completed AsyncRead calls, by sensor transport.",
		}, []string{"transport"}),
		SensorReadErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetryd",
			Name:      "sensor_read_errors_total",
			Help:      "Failed AsyncRead calls, by sensor transport.",
		}, []string{"transport"}),
		ReportScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetryd",
			Name:      "report_scans_total",
			Help:      "Report scan cycles, by reporting type.",
		}, []string{"reporting_type"}),
		ReportScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telemetryd",
			Name:      "report_scan_duration_seconds",
			Help:      "Wall time spent collecting a report's metrics.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"reporting_type"}),
		ReportsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemetryd",
			Name:      "reports_active",
			Help:      "Currently registered reports.",
		}),
		TriggersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemetryd",
			Name:      "triggers_active",
			Help:      "Currently registered triggers.",
		}),
		ThresholdCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetryd",
			Name:      "threshold_commits_total",
			Help:      "Confirmed threshold crossings, by trigger ID.",
		}, []string{"trigger_id"}),
	}

	reg.MustRegister(
		r.SensorReadsTotal,
		r.SensorReadErrorsTotal,
		r.ReportScansTotal,
		r.ReportScanDuration,
		r.ReportsActive,
		r.TriggersActive,
		r.ThresholdCommitsTotal,
	)
	return r
}

// Handler exposes the registry's instruments in the Prometheus text
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
