// Package telemetryd is the thin public facade wrapping the telemetry
// core: the sensor cache, the report and trigger managers, the
// persistence backend, self-observability, and the HTTP object
// surface, wired together the way the teacher's api.go wires
// internal/core, internal/storage, and internal/handlers behind a
// single State type.
package telemetryd

import (
	"context"
	"time"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/collect"
	"github.com/thisdougb/telemetryd/internal/config"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/metric"
	"github.com/thisdougb/telemetryd/internal/objectsurface"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/report"
	"github.com/thisdougb/telemetryd/internal/selfmetrics"
	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
	"github.com/thisdougb/telemetryd/internal/storage"
	"github.com/thisdougb/telemetryd/internal/threshold"
	"go.uber.org/zap"
)

// sensorValueIface is the bus interface sensors are discovered under,
// matching sensor.Handle's own read interface.
const sensorValueIface = "xyz.openbmc_project.Sensor.Value"

// Config carries the tunables of spec §3, loaded from the environment
// by ConfigFromEnv or set directly for tests.
type Config struct {
	SensorsRoot          string
	MaxReports           int
	MaxTriggers          int
	PollRateResolutionMs int64
	MinIntervalMs        int64
	MaxAppendLimit       int
	TriggerLoadRetryCap  int
	IDMaxSegmentLen      int
	IDMaxTotalLen        int

	PersistenceEnabled bool
	DBPath             string
	FlushInterval      time.Duration
	BatchSize          int
}

// ConfigFromEnv reads Config out of the environment, following the
// teacher's "env vars with defaults" configuration style (internal/config).
func ConfigFromEnv() Config {
	flushInterval, err := time.ParseDuration(config.StringValue("TELEMETRYD_FLUSH_INTERVAL"))
	if err != nil {
		flushInterval = 5 * time.Second
	}
	return Config{
		SensorsRoot:          config.StringValue("TELEMETRYD_SENSORS_ROOT"),
		MaxReports:           config.IntValue("TELEMETRYD_MAX_REPORTS"),
		MaxTriggers:          config.IntValue("TELEMETRYD_MAX_TRIGGERS"),
		PollRateResolutionMs: config.Int64Value("TELEMETRYD_POLL_RATE_RESOLUTION_MS"),
		MinIntervalMs:        config.Int64Value("TELEMETRYD_MIN_INTERVAL_MS"),
		MaxAppendLimit:       config.IntValue("TELEMETRYD_MAX_APPEND_LIMIT"),
		TriggerLoadRetryCap:  config.IntValue("TELEMETRYD_TRIGGER_LOAD_RETRY_CAP"),
		IDMaxSegmentLen:      config.IntValue("TELEMETRYD_ID_MAX_SEGMENT_LEN"),
		IDMaxTotalLen:        config.IntValue("TELEMETRYD_ID_MAX_TOTAL_LEN"),
		PersistenceEnabled:   config.BoolValue("TELEMETRYD_PERSISTENCE_ENABLED"),
		DBPath:               config.StringValue("TELEMETRYD_DB_PATH"),
		FlushInterval:        flushInterval,
		BatchSize:            config.IntValue("TELEMETRYD_BATCH_SIZE"),
	}
}

// Service is the primary interface to the telemetry core: it owns the
// sensor cache, the report and trigger managers, persistence, and the
// HTTP object surface, and exposes the handful of lifecycle and
// wiring operations a caller needs.
type Service struct {
	cfg       Config
	transport bus.Transport
	store     storage.Backend

	cache      *sensor.Cache
	presence   *bus.PresenceBus
	reportMgr  *report.Manager
	triggerMgr *threshold.Manager
	metrics    *selfmetrics.Registry
	surface    *objectsurface.Server

	sensorIndex *sensorIndex
}

// New builds a Service over transport, selecting a SQLite-backed store
// when cfg.PersistenceEnabled is set and an in-memory store otherwise,
// exactly as the teacher's NewState/NewStateWithPersistence pair does
// for its own persistence manager.
func New(cfg Config, transport bus.Transport) (*Service, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		transport:   transport,
		store:       store,
		presence:    bus.NewPresenceBus(),
		metrics:     selfmetrics.New(),
		sensorIndex: newSensorIndex(),
	}

	s.cache = sensor.NewCache(transport)
	s.cache.SetOnRead(func(tr string, err error) {
		if err != nil {
			s.metrics.SensorReadErrorsTotal.WithLabelValues(tr).Inc()
			return
		}
		s.metrics.SensorReadsTotal.WithLabelValues(tr).Inc()
	})

	idLimits := idcheck.Limits{MaxSegmentLen: cfg.IDMaxSegmentLen, MaxTotalLen: cfg.IDMaxTotalLen}

	s.reportMgr = report.NewManager(cfg.MaxReports, cfg.PollRateResolutionMs, cfg.MinIntervalMs, cfg.MaxAppendLimit, idLimits, store, s.onReadingsUpdate)
	s.reportMgr.SetOnScan(func(reportingType string, durationSeconds float64) {
		s.metrics.ReportScansTotal.WithLabelValues(reportingType).Inc()
		s.metrics.ReportScanDuration.WithLabelValues(reportingType).Observe(durationSeconds)
	})

	s.triggerMgr = threshold.NewManager(cfg.MaxTriggers, idLimits, store, s.presence, s.updateReport, cfg.TriggerLoadRetryCap)
	s.triggerMgr.SetOnCommit(func(triggerID string) {
		s.metrics.ThresholdCommitsTotal.WithLabelValues(triggerID).Inc()
	})

	s.surface = objectsurface.NewServer(s.reportMgr, s.triggerMgr, s.buildMetrics, s.resolveSensor, objectsurface.Config{
		MaxReports:           cfg.MaxReports,
		MaxTriggers:          cfg.MaxTriggers,
		PollRateResolutionMs: cfg.PollRateResolutionMs,
		MinIntervalMs:        cfg.MinIntervalMs,
	})

	return s, nil
}

func newStore(cfg Config) (storage.Backend, error) {
	if !cfg.PersistenceEnabled {
		return storage.NewMemoryBackend(), nil
	}
	return storage.NewSQLiteBackend(storage.Config{
		DBPath:        cfg.DBPath,
		FlushInterval: cfg.FlushInterval,
		BatchSize:     cfg.BatchSize,
	})
}

// Start discovers sensors under the configured root and restores
// persisted reports and triggers. It does not serve HTTP; the caller
// mounts ObjectSurface().Handler() itself. ctx governs every
// background goroutine the core starts.
func (s *Service) Start(ctx context.Context) error {
	ctx = config.SetContextCorrelationId(ctx, "service-start")

	if err := s.discoverSensors(ctx); err != nil {
		obslog.Warn(ctx, "initial sensor discovery failed", zap.Error(err))
	}

	s.reportMgr.Restore(ctx, s.buildMetrics)
	s.triggerMgr.Restore(ctx, s.resolveSensor)

	return nil
}

// Close flushes the persistence backend. Call during process shutdown.
func (s *Service) Close() error {
	return s.store.Close()
}

// ObjectSurface returns the HTTP+JSON adapter (§6) for mounting on a
// server mux.
func (s *Service) ObjectSurface() *objectsurface.Server {
	return s.surface
}

// Metrics returns the self-observability registry, for mounting its
// Handler() on a server mux.
func (s *Service) Metrics() *selfmetrics.Registry {
	return s.metrics
}

func (s *Service) onReadingsUpdate(reportID string, snap reading.Snapshot) {
	s.surface.OnReadingsUpdate(reportID, snap)
}

func (s *Service) updateReport(reportID string) {
	ctx := config.SetContextCorrelationId(context.Background(), "trigger-action-"+reportID)
	if err := s.reportMgr.UpdateReport(ctx, reportID); err != nil {
		obslog.Warn(ctx, "trigger action: update report failed", zap.String("report", reportID), zap.Error(err))
	}
}

// discoverSensors populates the path->service index used by
// buildMetrics to turn a bare sensor path, as carried in stored report
// configuration, into the service that owns it. resolveSensor does not
// use it: triggers name the service themselves.
func (s *Service) discoverSensors(ctx context.Context) error {
	entries, err := s.transport.GetSubtree(ctx, s.cfg.SensorsRoot, 0, []string{sensorValueIface})
	if err != nil {
		return errs.New(errs.TransportIO, "telemetryd.discoverSensors", err)
	}
	s.sensorIndex.reset(entries)
	return nil
}

// buildMetrics implements report.Builder: it resolves each metric
// param's sensor paths to live handles via the sensor cache and
// constructs the configured metric.
func (s *Service) buildMetrics(params []report.MetricParam) ([]report.MetricSpec, error) {
	specs := make([]report.MetricSpec, 0, len(params))
	for _, p := range params {
		handles := make([]*sensor.Handle, 0, len(p.SensorPaths))
		for _, path := range p.SensorPaths {
			h, err := s.acquireByPath(path)
			if err != nil {
				return nil, err
			}
			handles = append(handles, h)
		}

		op, ok := collect.ParseOperation(p.OperationType)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "telemetryd.buildMetrics", "unknown operation %q", p.OperationType)
		}
		scope, ok := collect.ParseTimeScope(p.CollectionTimeScope)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "telemetryd.buildMetrics", "unknown time scope %q", p.CollectionTimeScope)
		}

		m, err := metric.New(p.ID, p.Metadata, op, scope, p.CollectionDuration, handles)
		if err != nil {
			return nil, err
		}
		specs = append(specs, report.MetricSpec{Metric: m, SensorPaths: p.SensorPaths})
	}
	return specs, nil
}

// resolveSensor implements threshold.SensorResolver: it resolves a
// (service, path) pair straight to a cache handle and confirms the
// sensor answers a read, so a trigger restore that targets a sensor
// not yet present on the bus retries per §7 instead of arming against
// a dead handle.
func (s *Service) resolveSensor(service, path string) (threshold.SensorSpec, error) {
	id := sensorid.ID{Transport: s.transportName(), Service: service, Path: path}
	h := s.cache.Acquire(id)
	if err := h.AsyncRead(context.Background()); err != nil {
		s.cache.Release(h)
		return threshold.SensorSpec{}, err
	}
	return threshold.SensorSpec{Path: path, Handle: h}, nil
}

// acquireByPath resolves a bare sensor path against the discovered
// service index and acquires its handle.
func (s *Service) acquireByPath(path string) (*sensor.Handle, error) {
	service, ok := s.sensorIndex.serviceFor(path)
	if !ok {
		return nil, errs.Newf(errs.NotFound, "telemetryd.acquireByPath", "no service discovered for sensor path %q", path)
	}
	id := sensorid.ID{Transport: s.transportName(), Service: service, Path: path}
	return s.cache.Acquire(id), nil
}

// transportName tags every sensorid.ID this facade mints. The core has
// one external bus collaborator (§6's Sensor Transport); "dbus" names
// it the way the rest of the corpus names its object-path convention
// (xyz.openbmc_project.*).
func (s *Service) transportName() string {
	return "dbus"
}
