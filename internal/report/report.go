package report

import (
	"context"
	"sync"
	"time"

	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/metric"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/storage"
	"go.uber.org/zap"
)

// MetricSpec pairs a built metric with the sensor paths it was
// configured with, so the report can reproduce DumpConfiguration
// without asking the sensor cache for reverse lookups.
type MetricSpec struct {
	Metric      *metric.Metric
	SensorPaths []string
}

// Params constructs a Report. See §4.5 for the field invariants.
type Params struct {
	ID            string
	Name          string
	Domain        string
	ReportingType ReportingType
	UpdatePolicy  UpdatePolicy
	IntervalMs    int64
	AppendLimit   int
	Actions       Actions
	Persistent    bool
	Metrics       []MetricSpec

	// OnScan, if set, is called after every scan (periodic tick or
	// Update) with the reporting type and the wall time the scan took,
	// for self-observability; it is never required for correctness.
	OnScan func(reportingType string, durationSeconds float64)
}

// Validate checks Params against the global scheduling constants of
// §3: pollRateResolution, minIntervalMs and maxAppendLimit, and the ID
// canonicalization rule of §6.
func (p Params) Validate(pollRateResolutionMs, minIntervalMs int64, maxAppendLimit int, idLimits idcheck.Limits) error {
	if err := idcheck.Validate(p.ID, idLimits, "report.Validate"); err != nil {
		return err
	}

	if p.ReportingType == Periodic {
		if p.IntervalMs < minIntervalMs {
			return errs.Newf(errs.InvalidArgument, "report.Validate", "interval %dms below minimum %dms", p.IntervalMs, minIntervalMs)
		}
		if p.IntervalMs%pollRateResolutionMs != 0 {
			return errs.Newf(errs.InvalidArgument, "report.Validate", "interval %dms is not a multiple of poll rate resolution %dms", p.IntervalMs, pollRateResolutionMs)
		}
	} else if p.IntervalMs != 0 {
		return errs.New(errs.InvalidArgument, "report.Validate", nil)
	}

	if p.AppendLimit > maxAppendLimit {
		return errs.Newf(errs.InvalidArgument, "report.Validate", "append limit %d exceeds cap %d", p.AppendLimit, maxAppendLimit)
	}
	if len(p.Metrics) == 0 {
		return errs.New(errs.InvalidArgument, "report.Validate", nil)
	}
	return nil
}

// Report is one named bundle of metrics with a scheduling policy and
// an output buffer.
type Report struct {
	id            string
	name          string
	domain        string
	reportingType ReportingType
	updatePolicy  UpdatePolicy
	intervalMs    int64
	appendLimit   int
	actions       Actions
	persistent    bool
	metrics       []MetricSpec

	mu        sync.Mutex
	enabled   bool
	buf       []reading.Data
	t0        int64
	firstSeen map[int]map[int]bool // metric index -> sensor index -> seen

	store            storage.Backend
	onReadingsUpdate func(reading.Snapshot)
	onScan           func(reportingType string, durationSeconds float64)

	cancelTimer context.CancelFunc
}

// New constructs a Report from already-validated Params.
func New(p Params, store storage.Backend, onReadingsUpdate func(reading.Snapshot)) *Report {
	return &Report{
		id:               p.ID,
		name:             p.Name,
		domain:           p.Domain,
		reportingType:    p.ReportingType,
		updatePolicy:     p.UpdatePolicy,
		intervalMs:       p.IntervalMs,
		appendLimit:      p.AppendLimit,
		actions:          p.Actions,
		persistent:       p.Persistent,
		metrics:          p.Metrics,
		enabled:          true,
		firstSeen:        make(map[int]map[int]bool),
		store:            store,
		onReadingsUpdate: onReadingsUpdate,
		onScan:           p.OnScan,
	}
}

// ID returns the report's identity.
func (r *Report) ID() string { return r.id }

// Name returns the report's configured name.
func (r *Report) Name() string { return r.name }

// Start attaches the report to its metrics' sensors and, for a
// periodic report, begins the scan timer. For onChange reports it
// wires each metric's change callback.
func (r *Report) Start(ctx context.Context) {
	for i, ms := range r.metrics {
		ms.Metric.Initialize()
		if r.reportingType == OnChange {
			idx := i
			ms.Metric.SetOnChange(func(sensorIdx int) { r.onMetricChanged(idx, sensorIdx) })
		}
	}

	if r.reportingType != Periodic {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancelTimer = cancel

	go func() {
		ticker := time.NewTicker(time.Duration(r.intervalMs) * time.Millisecond)
		defer ticker.Stop()
		scanning := int32(0)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if scanning != 0 {
					obslog.Warn(loopCtx, "scanning period too fast", zap.String("report", r.id))
					continue
				}
				scanning = 1
				r.periodicTick(loopCtx)
				scanning = 0
			}
		}
	}()
}

// Stop cancels the scan timer, if any, and detaches from every sensor.
func (r *Report) Stop() {
	if r.cancelTimer != nil {
		r.cancelTimer()
		r.cancelTimer = nil
	}
	for _, ms := range r.metrics {
		ms.Metric.Deinitialize()
	}
}

func (r *Report) periodicTick(ctx context.Context) {
	start := time.Now()
	now := start.UnixMilli()
	for _, ms := range r.metrics {
		ms.Metric.GetUpdatedReadings(now)
	}
	r.applyUpdate(now)
	r.reportScanDuration(start)
}

// Update implements the object surface's per-report Update method
// (§6): for every reporting type it ticks the timer-required metrics
// synchronously, then folds the current metric values into the
// readings buffer.
func (r *Report) Update(ctx context.Context) {
	start := time.Now()
	now := start.UnixMilli()
	for _, ms := range r.metrics {
		if ms.Metric.IsTimerRequired() {
			ms.Metric.GetUpdatedReadings(now)
		}
	}
	r.applyUpdate(now)
	r.reportScanDuration(start)
}

func (r *Report) reportScanDuration(start time.Time) {
	if r.onScan != nil {
		r.onScan(r.reportingType.String(), time.Since(start).Seconds())
	}
}

func (r *Report) onMetricChanged(metricIdx, sensorIdx int) {
	r.mu.Lock()
	if r.firstSeen[metricIdx] == nil {
		r.firstSeen[metricIdx] = make(map[int]bool)
	}
	if !r.firstSeen[metricIdx][sensorIdx] {
		r.firstSeen[metricIdx][sensorIdx] = true
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.applyUpdate(time.Now().UnixMilli())
}

// applyUpdate is update_readings() from §4.5.
func (r *Report) applyUpdate(now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	var data []reading.Data
	for _, ms := range r.metrics {
		for _, v := range ms.Metric.Values() {
			data = append(data, reading.Data{
				MetricID:    ms.Metric.ID(),
				Metadata:    v.Metadata,
				Value:       v.Value,
				TimestampMs: v.TimestampMs,
			})
		}
	}

	switch r.updatePolicy {
	case Overwrite, NewReport:
		if r.appendLimit > 0 && len(data) > r.appendLimit {
			data = data[:r.appendLimit]
		} else if r.appendLimit == 0 {
			data = nil
		}
		r.buf = data
		r.t0 = now

	case AppendStopWhenFull:
		wasEmpty := len(r.buf) == 0
		appended := false
		for _, d := range data {
			if len(r.buf) >= r.appendLimit {
				break
			}
			r.buf = append(r.buf, d)
			appended = true
		}
		if wasEmpty && appended {
			r.t0 = now
		}

	case AppendWrapWhenFull:
		for _, d := range data {
			if r.appendLimit == 0 {
				break
			}
			if len(r.buf) < r.appendLimit {
				r.buf = append(r.buf, d)
			} else {
				r.buf = append(r.buf[1:], d)
			}
		}
		r.t0 = now
	}

	if r.actions.Has(EmitsReadingsUpdate) && r.onReadingsUpdate != nil {
		snapshot := reading.Snapshot{TimestampMs: r.t0, Readings: append([]reading.Data(nil), r.buf...)}
		r.onReadingsUpdate(snapshot)
	}
}

// Readings returns the current snapshot.
func (r *Report) Readings() reading.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return reading.Snapshot{TimestampMs: r.t0, Readings: append([]reading.Data(nil), r.buf...)}
}

// SetEnabled toggles whether applyUpdate does anything.
func (r *Report) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// DumpConfiguration yields a record sufficient to recreate the report.
func (r *Report) DumpConfiguration() StoredConfig {
	params := make([]MetricParam, len(r.metrics))
	for i, ms := range r.metrics {
		cfg := ms.Metric.DumpConfiguration()
		params[i] = MetricParam{
			SensorPaths:         ms.SensorPaths,
			OperationType:       cfg.Operation.String(),
			ID:                  cfg.ID,
			Metadata:            cfg.Metadata,
			CollectionTimeScope: cfg.TimeScope.String(),
			CollectionDuration:  cfg.DurationMs,
		}
	}
	return StoredConfig{
		Version:       configSchemaVersion,
		Name:          r.name,
		Domain:        r.domain,
		ReportingType: r.reportingType.String(),
		ReportAction:  r.actions.Names(),
		ScanPeriod:    r.intervalMs,
		AppendLimit:   r.appendLimit,
		ReportUpdates: r.updatePolicy.String(),
		Persistency:   r.persistent,
		MetricParams:  params,
	}
}

// Persist writes the report's configuration to the blob store, if
// persistent. Non-persistent reports instead have any stale blob
// removed.
func (r *Report) Persist() error {
	if r.store == nil {
		return nil
	}
	if !r.persistent {
		return r.store.Delete(BlobKey(r.id))
	}
	b, err := EncodeConfig(r.DumpConfiguration())
	if err != nil {
		return err
	}
	if err := r.store.Put(BlobKey(r.id), b); err != nil {
		return errs.New(errs.PersistenceIO, "report.Persist", err)
	}
	return nil
}

// Delete stops the report and erases its persisted blob, if present.
func (r *Report) Delete() error {
	r.Stop()
	if r.store == nil {
		return nil
	}
	if err := r.store.Delete(BlobKey(r.id)); err != nil {
		return errs.New(errs.PersistenceIO, "report.Delete", err)
	}
	return nil
}
