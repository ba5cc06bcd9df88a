package report

import (
	"context"
	"sync"

	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/storage"
	"go.uber.org/zap"
)

// Builder constructs the live metrics for a report from its stored
// configuration, resolving sensor paths against the sensor cache. It
// is supplied by the caller (the root facade) so this package stays
// free of a dependency on the bus/sensor cache wiring.
type Builder func(params []MetricParam) ([]MetricSpec, error)

// Manager is the report registry of §4.6: enforces uniqueness and the
// global report-count cap, and mediates creation, deletion, and
// startup restore.
type Manager struct {
	mu         sync.Mutex
	reports    map[string]*Report
	maxReports int

	pollRateResolutionMs int64
	minIntervalMs        int64
	maxAppendLimit       int
	idLimits             idcheck.Limits

	store            storage.Backend
	onReadingsUpdate func(reportID string, snapshot reading.Snapshot)
	onScan           func(reportingType string, durationSeconds float64)
}

// SetOnScan installs an optional callback applied to every report this
// manager builds from this point on (AddReport and Restore), for
// self-observability.
func (mgr *Manager) SetOnScan(onScan func(reportingType string, durationSeconds float64)) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.onScan = onScan
}

// NewManager returns an empty manager bound to the given global
// scheduling constants, ID canonicalization limits, and persistence
// backend.
func NewManager(maxReports int, pollRateResolutionMs, minIntervalMs int64, maxAppendLimit int, idLimits idcheck.Limits, store storage.Backend, onReadingsUpdate func(string, reading.Snapshot)) *Manager {
	return &Manager{
		reports:              make(map[string]*Report),
		maxReports:           maxReports,
		pollRateResolutionMs: pollRateResolutionMs,
		minIntervalMs:        minIntervalMs,
		maxAppendLimit:       maxAppendLimit,
		idLimits:             idLimits,
		store:                store,
		onReadingsUpdate:     onReadingsUpdate,
	}
}

// AddReport validates params, builds the report, starts it, and
// registers it. Returns the new report's ID.
func (mgr *Manager) AddReport(ctx context.Context, p Params) (string, error) {
	if err := p.Validate(mgr.pollRateResolutionMs, mgr.minIntervalMs, mgr.maxAppendLimit, mgr.idLimits); err != nil {
		return "", err
	}

	mgr.mu.Lock()
	if _, exists := mgr.reports[p.ID]; exists {
		mgr.mu.Unlock()
		return "", errs.New(errs.AlreadyExists, "report.Manager.AddReport", nil)
	}
	if len(mgr.reports) >= mgr.maxReports {
		mgr.mu.Unlock()
		return "", errs.New(errs.ResourceLimit, "report.Manager.AddReport", nil)
	}
	mgr.mu.Unlock()

	if p.OnScan == nil {
		p.OnScan = mgr.onScan
	}
	r := New(p, mgr.store, mgr.notifyFor(p.ID))
	if err := r.Persist(); err != nil {
		return "", err
	}
	r.Start(ctx)

	mgr.mu.Lock()
	mgr.reports[p.ID] = r
	mgr.mu.Unlock()

	return p.ID, nil
}

func (mgr *Manager) notifyFor(id string) func(reading.Snapshot) {
	return func(s reading.Snapshot) {
		if mgr.onReadingsUpdate != nil {
			mgr.onReadingsUpdate(id, s)
		}
	}
}

// RemoveReport stops and unregisters id, erasing its persisted blob.
func (mgr *Manager) RemoveReport(id string) error {
	mgr.mu.Lock()
	r, ok := mgr.reports[id]
	if !ok {
		mgr.mu.Unlock()
		return errs.New(errs.NotFound, "report.Manager.RemoveReport", nil)
	}
	delete(mgr.reports, id)
	mgr.mu.Unlock()

	return r.Delete()
}

// UpdateReport triggers the named report's Update, used by trigger
// actions that poke a report on a confirmed crossing.
func (mgr *Manager) UpdateReport(ctx context.Context, id string) error {
	mgr.mu.Lock()
	r, ok := mgr.reports[id]
	mgr.mu.Unlock()
	if !ok {
		return errs.New(errs.NotFound, "report.Manager.UpdateReport", nil)
	}
	r.Update(ctx)
	return nil
}

// Get returns the report registered under id.
func (mgr *Manager) Get(id string) (*Report, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	r, ok := mgr.reports[id]
	return r, ok
}

// List returns every registered report ID.
func (mgr *Manager) List() []string {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	ids := make([]string, 0, len(mgr.reports))
	for id := range mgr.reports {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of registered reports.
func (mgr *Manager) Len() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.reports)
}

// Restore loads every persisted report from the store and rebuilds it
// via build. A version mismatch or build failure is logged and the
// record is skipped, per §7.
func (mgr *Manager) Restore(ctx context.Context, build Builder) {
	if mgr.store == nil {
		return
	}
	keys, err := mgr.store.List("Report/")
	if err != nil {
		obslog.Error(ctx, "report restore: list failed", zap.Error(err))
		return
	}

	for _, key := range keys {
		blob, ok, err := mgr.store.Get(key)
		if err != nil || !ok {
			continue
		}
		cfg, err := DecodeConfig(blob)
		if err != nil {
			obslog.Warn(ctx, "report restore: skipping record", zap.String("key", key), zap.Error(err))
			continue
		}

		metrics, err := build(cfg.MetricParams)
		if err != nil {
			obslog.Warn(ctx, "report restore: failed to resolve sensors", zap.String("report", cfg.Name), zap.Error(err))
			continue
		}

		reportingType, _ := ParseReportingType(cfg.ReportingType)
		updatePolicy, _ := ParseUpdatePolicy(cfg.ReportUpdates)
		id := reportIDFromKey(key)

		r := New(Params{
			ID:            id,
			Name:          cfg.Name,
			Domain:        cfg.Domain,
			ReportingType: reportingType,
			UpdatePolicy:  updatePolicy,
			IntervalMs:    cfg.ScanPeriod,
			AppendLimit:   cfg.AppendLimit,
			Actions:       ActionsFromNames(cfg.ReportAction),
			Persistent:    cfg.Persistency,
			Metrics:       metrics,
			OnScan:        mgr.onScan,
		}, mgr.store, mgr.notifyFor(id))

		r.Start(ctx)

		mgr.mu.Lock()
		mgr.reports[id] = r
		mgr.mu.Unlock()
	}
}

func reportIDFromKey(key string) string {
	// key is "Report/<id>/configuration.json"
	const prefix = "Report/"
	const suffix = "/configuration.json"
	if len(key) <= len(prefix)+len(suffix) {
		return key
	}
	return key[len(prefix) : len(key)-len(suffix)]
}
