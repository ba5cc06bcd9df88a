package threshold

import (
	"context"
	"sync"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/sensor"
)

// SensorSpec names one sensor a trigger's thresholds watch, alongside
// the metadata surfaced on the object surface.
type SensorSpec struct {
	Path     string
	Metadata string
	Handle   *sensor.Handle
}

// Params configures a Trigger, per §4.8.
type Params struct {
	ID          string
	Name        string
	Numeric     []NumericKind
	Discrete    []DiscreteKind
	Sensors     []SensorSpec
	ReportIDs   []string
	ActionFn    func(reportID string)
	PresenceBus *bus.PresenceBus

	// OnCommit, if set, is called on every confirmed crossing before
	// ActionFn fans out to reports, for self-observability.
	OnCommit func(triggerID string)

	// IDLimits carries the §6 ID canonicalization caps, set by the
	// owning Manager.
	IDLimits idcheck.Limits
}

// Validate enforces the §6 ID canonicalization rule and the
// all-numeric-or-all-discrete invariant of §3/§4.9: a trigger's
// thresholds must be homogeneous.
func (p Params) Validate() error {
	if err := idcheck.Validate(p.ID, p.IDLimits, "threshold.Trigger"); err != nil {
		return err
	}
	if len(p.Numeric) > 0 && len(p.Discrete) > 0 {
		return errs.Newf(errs.InvalidArgument, "threshold.Trigger", "trigger %s mixes numeric and discrete thresholds", p.ID)
	}
	if len(p.Numeric) == 0 && len(p.Discrete) == 0 {
		return errs.Newf(errs.InvalidArgument, "threshold.Trigger", "trigger %s has no thresholds", p.ID)
	}
	if len(p.Sensors) == 0 {
		return errs.Newf(errs.InvalidArgument, "threshold.Trigger", "trigger %s has no sensors", p.ID)
	}
	return nil
}

// Trigger groups one or more homogeneous thresholds over a shared
// sensor set and notifies a set of reports on every confirmed
// crossing, per §4.8. Its presence is broadcast on a PresenceBus so
// reports can discover which triggers target them without a hard
// dependency back onto the trigger manager.
type Trigger struct {
	id        string
	name      string
	reportIDs []string
	sensors   []SensorSpec

	thresholds []*Threshold

	mu          sync.Mutex
	initialized bool
	presence    *bus.PresenceBus
}

// New builds a Trigger from Params, constructing one Threshold per
// configured numeric or discrete kind.
func New(p Params) (*Trigger, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	handles := make([]*sensor.Handle, len(p.Sensors))
	for i, s := range p.Sensors {
		handles[i] = s.Handle
	}

	t := &Trigger{
		id:        p.ID,
		name:      p.Name,
		reportIDs: append([]string(nil), p.ReportIDs...),
		sensors:   append([]SensorSpec(nil), p.Sensors...),
		presence:  p.PresenceBus,
	}

	actions := notifyActions(p.ID, p.ReportIDs, p.ActionFn, p.OnCommit)
	for _, kind := range p.Numeric {
		t.thresholds = append(t.thresholds, NewNumeric(p.ID, kind, handles, actions))
	}
	for _, kind := range p.Discrete {
		t.thresholds = append(t.thresholds, NewDiscrete(p.ID, kind, handles, actions))
	}

	return t, nil
}

// notifyActions builds the single Action every threshold in a trigger
// shares: record the commit for self-observability, then poke every
// report the trigger is wired to.
func notifyActions(triggerID string, reportIDs []string, fn func(reportID string), onCommit func(triggerID string)) []Action {
	if fn == nil && onCommit == nil {
		return nil
	}
	return []Action{
		func(_ context.Context, _, _, _ string, _ int64, _ float64) {
			if onCommit != nil {
				onCommit(triggerID)
			}
			if fn != nil {
				for _, rid := range reportIDs {
					fn(rid)
				}
			}
		},
	}
}

// ID returns the trigger's identity.
func (t *Trigger) ID() string { return t.id }

// Name returns the trigger's display name.
func (t *Trigger) Name() string { return t.name }

// ReportIDs returns the reports this trigger notifies on a crossing.
func (t *Trigger) ReportIDs() []string { return append([]string(nil), t.reportIDs...) }

// Sensors returns the trigger's configured sensor specs.
func (t *Trigger) Sensors() []SensorSpec { return append([]SensorSpec(nil), t.sensors...) }

// Thresholds returns the trigger's constituent thresholds.
func (t *Trigger) Thresholds() []*Threshold { return append([]*Threshold(nil), t.thresholds...) }

// Initialize arms every threshold and publishes a TriggerAdded event.
func (t *Trigger) Initialize() {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return
	}
	t.initialized = true
	t.mu.Unlock()

	for _, th := range t.thresholds {
		th.Initialize()
	}
	if t.presence != nil {
		t.presence.Publish(bus.PresenceEvent{Kind: bus.TriggerAdded, TriggerID: t.id, ReportIDs: t.ReportIDs()})
	}
}

// Deinitialize disarms every threshold and publishes a TriggerRemoved event.
func (t *Trigger) Deinitialize() {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return
	}
	t.initialized = false
	t.mu.Unlock()

	for _, th := range t.thresholds {
		th.Deinitialize()
	}
	if t.presence != nil {
		t.presence.Publish(bus.PresenceEvent{Kind: bus.TriggerRemoved, TriggerID: t.id, ReportIDs: t.ReportIDs()})
	}
}

// UpdateSensors re-points every threshold in the trigger at a new
// sensor set, per §4.7's closing operation.
func (t *Trigger) UpdateSensors(sensors []SensorSpec) {
	t.mu.Lock()
	t.sensors = append([]SensorSpec(nil), sensors...)
	t.mu.Unlock()

	handles := make([]*sensor.Handle, len(sensors))
	for i, s := range sensors {
		handles[i] = s.Handle
	}
	for _, th := range t.thresholds {
		th.UpdateSensors(handles)
	}
}
