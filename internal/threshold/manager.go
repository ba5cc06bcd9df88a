package threshold

import (
	"context"
	"time"

	"sync"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/storage"
	"go.uber.org/zap"
)

// SensorResolver resolves a stored sensor reference to a live handle,
// acquiring it from the process-wide sensor cache. It is supplied by
// the caller so this package stays free of a hard dependency on the
// bus transport used to construct sensor.Cache.
type SensorResolver func(service, path string) (SensorSpec, error)

// Manager is the trigger registry of §4.9: enforces uniqueness and
// the global trigger-count cap, and mediates creation, deletion, and
// startup restore with the retry/backoff sensor-resolution rule of §7.
type Manager struct {
	mu          sync.Mutex
	triggers    map[string]*Trigger
	maxTriggers int

	store          storage.Backend
	presence       *bus.PresenceBus
	updateReportFn func(reportID string)
	onCommit       func(triggerID string)
	idLimits       idcheck.Limits

	retryCap int
}

// NewManager returns an empty manager bound to the given cap,
// ID canonicalization limits, persistence backend, presence bus, and
// report-poke callback.
func NewManager(maxTriggers int, idLimits idcheck.Limits, store storage.Backend, presence *bus.PresenceBus, updateReportFn func(reportID string), retryCap int) *Manager {
	return &Manager{
		triggers:       make(map[string]*Trigger),
		maxTriggers:    maxTriggers,
		idLimits:       idLimits,
		store:          store,
		presence:       presence,
		updateReportFn: updateReportFn,
		retryCap:       retryCap,
	}
}

// SetOnCommit installs an optional callback invoked on every confirmed
// crossing across every trigger the manager registers, for
// self-observability. It must be called before AddTrigger/Restore.
func (mgr *Manager) SetOnCommit(onCommit func(triggerID string)) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.onCommit = onCommit
}

// AddTrigger validates, persists, initializes, and registers a new
// trigger built from p.
func (mgr *Manager) AddTrigger(p Params) (string, error) {
	p.IDLimits = mgr.idLimits
	if err := p.Validate(); err != nil {
		return "", err
	}

	mgr.mu.Lock()
	if _, exists := mgr.triggers[p.ID]; exists {
		mgr.mu.Unlock()
		return "", errs.New(errs.AlreadyExists, "threshold.Manager.AddTrigger", nil)
	}
	if len(mgr.triggers) >= mgr.maxTriggers {
		mgr.mu.Unlock()
		return "", errs.New(errs.ResourceLimit, "threshold.Manager.AddTrigger", nil)
	}
	mgr.mu.Unlock()

	p.ActionFn = mgr.updateReportFn
	p.PresenceBus = mgr.presence
	p.OnCommit = mgr.onCommit

	trig, err := New(p)
	if err != nil {
		return "", err
	}

	if mgr.store != nil {
		blob, err := EncodeConfig(dumpConfig(p))
		if err != nil {
			return "", err
		}
		if err := mgr.store.Put(BlobKey(p.ID), blob); err != nil {
			return "", errs.New(errs.PersistenceIO, "threshold.Manager.AddTrigger", err)
		}
	}

	trig.Initialize()

	mgr.mu.Lock()
	mgr.triggers[p.ID] = trig
	mgr.mu.Unlock()

	return p.ID, nil
}

func dumpConfig(p Params) StoredConfig {
	cfg := StoredConfig{
		ID:             p.ID,
		Name:           p.Name,
		ReportIDs:      append([]string(nil), p.ReportIDs...),
		TriggerActions: []string{"updateReport"},
	}
	for _, s := range p.Sensors {
		sp := SensorParam{Path: s.Path, Metadata: s.Metadata}
		if s.Handle != nil {
			sp.Service = s.Handle.ID().Service
		}
		cfg.Sensors = append(cfg.Sensors, sp)
	}
	for _, n := range p.Numeric {
		cfg.NumericParams = append(cfg.NumericParams, NumericParam{
			Type: n.Type.String(), DwellTime: n.DwellMs, Direction: n.Direction.String(), Value: n.Value,
		})
	}
	for _, d := range p.Discrete {
		cfg.DiscreteParams = append(cfg.DiscreteParams, DiscreteParam{
			Name: d.Name, Severity: d.Severity.String(), DwellTime: d.DwellMs, Value: d.Value,
		})
	}
	return cfg
}

// RemoveTrigger deinitializes and unregisters id, erasing its
// persisted blob.
func (mgr *Manager) RemoveTrigger(id string) error {
	mgr.mu.Lock()
	trig, ok := mgr.triggers[id]
	if !ok {
		mgr.mu.Unlock()
		return errs.New(errs.NotFound, "threshold.Manager.RemoveTrigger", nil)
	}
	delete(mgr.triggers, id)
	mgr.mu.Unlock()

	trig.Deinitialize()
	if mgr.store != nil {
		if err := mgr.store.Delete(BlobKey(id)); err != nil {
			return errs.New(errs.PersistenceIO, "threshold.Manager.RemoveTrigger", err)
		}
	}
	return nil
}

// Get returns the trigger registered under id.
func (mgr *Manager) Get(id string) (*Trigger, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	t, ok := mgr.triggers[id]
	return t, ok
}

// List returns every registered trigger ID.
func (mgr *Manager) List() []string {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	ids := make([]string, 0, len(mgr.triggers))
	for id := range mgr.triggers {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of registered triggers.
func (mgr *Manager) Len() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.triggers)
}

// Restore loads every persisted trigger from the store and rebuilds
// it via resolve. Per §7, a trigger whose sensors cannot be resolved
// is retried with a growing backoff (1s, then +1s per attempt) up to
// retryCap attempts, after which it is discarded and logged.
func (mgr *Manager) Restore(ctx context.Context, resolve SensorResolver) {
	if mgr.store == nil {
		return
	}
	keys, err := mgr.store.List("Trigger/")
	if err != nil {
		obslog.Error(ctx, "trigger restore: list failed", zap.Error(err))
		return
	}

	for _, key := range keys {
		blob, ok, err := mgr.store.Get(key)
		if err != nil || !ok {
			continue
		}
		cfg, err := DecodeConfig(blob)
		if err != nil {
			obslog.Warn(ctx, "trigger restore: skipping record", zap.String("key", key), zap.Error(err))
			continue
		}
		go mgr.restoreOne(ctx, cfg, resolve)
	}
}

func (mgr *Manager) restoreOne(ctx context.Context, cfg StoredConfig, resolve SensorResolver) {
	var sensors []SensorSpec
	backoff := time.Second
	for attempt := 1; attempt <= mgr.retryCap; attempt++ {
		sensors = sensors[:0]
		ok := true
		for _, sp := range cfg.Sensors {
			spec, err := resolve(sp.Service, sp.Path)
			if err != nil {
				ok = false
				break
			}
			spec.Metadata = sp.Metadata
			sensors = append(sensors, spec)
		}
		if ok {
			mgr.finishRestore(ctx, cfg, sensors)
			return
		}

		if attempt == mgr.retryCap {
			break
		}
		obslog.Warn(ctx, "trigger restore: sensor resolution failed, retrying",
			zap.String("trigger", cfg.ID), zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff += time.Second
	}

	obslog.Error(ctx, "trigger restore: discarding trigger after exhausting retries", zap.String("trigger", cfg.ID))
}

func (mgr *Manager) finishRestore(ctx context.Context, cfg StoredConfig, sensors []SensorSpec) {
	p := Params{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Sensors:     sensors,
		ReportIDs:   cfg.ReportIDs,
		ActionFn:    mgr.updateReportFn,
		PresenceBus: mgr.presence,
		OnCommit:    mgr.onCommit,
		IDLimits:    mgr.idLimits,
	}
	for _, np := range cfg.NumericParams {
		kind, err := np.ToKind()
		if err != nil {
			obslog.Error(ctx, "trigger restore: bad numeric param", zap.String("trigger", cfg.ID), zap.Error(err))
			return
		}
		p.Numeric = append(p.Numeric, kind)
	}
	for _, dp := range cfg.DiscreteParams {
		kind, err := dp.ToKind()
		if err != nil {
			obslog.Error(ctx, "trigger restore: bad discrete param", zap.String("trigger", cfg.ID), zap.Error(err))
			return
		}
		p.Discrete = append(p.Discrete, kind)
	}

	trig, err := New(p)
	if err != nil {
		obslog.Error(ctx, "trigger restore: build failed", zap.String("trigger", cfg.ID), zap.Error(err))
		return
	}
	trig.Initialize()

	mgr.mu.Lock()
	mgr.triggers[cfg.ID] = trig
	mgr.mu.Unlock()
}
