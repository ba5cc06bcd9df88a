// Package metric implements the per-input reading stream of spec §4.4:
// a metric owns one or more sensors, reduces each sensor's samples
// through a collection function and time-scoped window, and exposes
// the current (metadata, value, timestamp) tuple per sensor.
package metric

import (
	"math"
	"sync"

	"github.com/thisdougb/telemetryd/internal/collect"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
)

// Value is one sensor's current reading within a metric.
type Value struct {
	Metadata    string
	Value       reading.Float
	TimestampMs int64
}

// Config is enough to recreate a Metric, per dump_configuration (§4.4).
type Config struct {
	ID          string
	Metadata    string
	Operation   collect.Operation
	TimeScope   collect.TimeScope
	DurationMs  int64
	SensorIDs   []sensorid.ID
}

// Metric is one configured reading stream over a non-empty,
// ordered list of sensors sharing the same collection function and
// time-scope.
type Metric struct {
	id         string
	metadata   string
	op         collect.Operation
	scope      collect.TimeScope
	durationMs int64

	sensors []*sensor.Handle

	mu       sync.Mutex
	windows  []*collect.Window
	values   []Value
	unsubs   []sensor.Unsubscribe
	onChange func(index int)
}

// New builds a Metric over sensors, which must be non-empty. Each
// sensor gets its own window of the given operation and time-scope.
func New(id, metadata string, op collect.Operation, scope collect.TimeScope, durationMs int64, sensors []*sensor.Handle) (*Metric, error) {
	if len(sensors) == 0 {
		return nil, errs.New(errs.InvalidArgument, "metric.New", nil)
	}

	windows := make([]*collect.Window, len(sensors))
	for i := range sensors {
		w, err := newWindow(op, scope, durationMs)
		if err != nil {
			return nil, err
		}
		windows[i] = w
	}

	sensorIDs := make([]sensorid.ID, len(sensors))
	for i, s := range sensors {
		sensorIDs[i] = s.ID()
	}

	return &Metric{
		id:         id,
		metadata:   metadata,
		op:         op,
		scope:      scope,
		durationMs: durationMs,
		sensors:    sensors,
		windows:    windows,
		values:     make([]Value, len(sensors)),
	}, nil
}

func newWindow(op collect.Operation, scope collect.TimeScope, durationMs int64) (*collect.Window, error) {
	fn := collect.New(op)
	switch scope {
	case collect.Point:
		return collect.NewPointWindow(fn), nil
	case collect.Startup:
		return collect.NewStartupWindow(fn), nil
	case collect.Interval:
		return collect.NewIntervalWindow(fn, durationMs)
	default:
		return nil, errs.New(errs.InvalidArgument, "metric.newWindow", nil)
	}
}

// ID returns the metric's configured identity.
func (m *Metric) ID() string { return m.id }

// SetOnChange registers the callback invoked, with the index of the
// sensor whose window produced a materially different value, whenever
// a sensor update changes a window's result. Reports use this to
// drive the onChange reporting regime.
func (m *Metric) SetOnChange(fn func(index int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Initialize attaches the metric as a listener on every sensor. Safe
// to call more than once; subsequent calls are no-ops.
func (m *Metric) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.unsubs) != 0 {
		return
	}
	m.unsubs = make([]sensor.Unsubscribe, len(m.sensors))
	for i, s := range m.sensors {
		m.unsubs[i] = s.RegisterListener(m)
	}
}

// Deinitialize detaches the metric from every sensor.
func (m *Metric) Deinitialize() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// SensorUpdated implements sensor.Listener's three-argument form: a
// sensor produced a fresh, changed value.
func (m *Metric) SensorUpdated(h *sensor.Handle, timestampMs int64, value float64) {
	m.mu.Lock()

	idx := m.indexOf(h)
	if idx < 0 {
		m.mu.Unlock()
		return
	}

	w := m.windows[idx]
	first := w.Empty()
	w.Add(reading.Item{TimestampMs: timestampMs, Value: value})
	result := w.Calculate(timestampMs)

	prev := m.values[idx]
	changed := first || float64(prev.Value) != result
	m.values[idx] = Value{Metadata: m.metadata, Value: reading.Float(result), TimestampMs: timestampMs}
	cb := m.onChange
	m.mu.Unlock()

	// The callback runs unlocked: a report's handler reads Values() back.
	if changed && cb != nil {
		cb(idx)
	}
}

// SensorRefreshed implements sensor.Listener's two-argument form: a
// read completed with no change in value, so only the timestamp moves.
func (m *Metric) SensorRefreshed(h *sensor.Handle, timestampMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(h)
	if idx < 0 {
		return
	}
	m.values[idx].TimestampMs = timestampMs
}

func (m *Metric) indexOf(h *sensor.Handle) int {
	for i, s := range m.sensors {
		if s == h {
			return i
		}
	}
	return -1
}

// Values returns the metric's current per-sensor readings without
// recomputing them, for regimes that rely on sensor-driven updates
// rather than a timer tick.
func (m *Metric) Values() []Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Value, len(m.values))
	copy(out, m.values)
	return out
}

// GetUpdatedReadings queries every sensor's window as of now and
// returns one Value per sensor, in sensor order.
func (m *Metric) GetUpdatedReadings(nowMs int64) []Value {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Value, len(m.sensors))
	for i, w := range m.windows {
		if w.Empty() {
			out[i] = Value{Metadata: m.metadata, Value: reading.Float(math.NaN()), TimestampMs: 0}
			continue
		}
		result := w.Calculate(nowMs)
		m.values[i] = Value{Metadata: m.metadata, Value: reading.Float(result), TimestampMs: nowMs}
		out[i] = m.values[i]
	}
	return out
}

// DumpConfiguration yields a record sufficient to recreate the metric.
func (m *Metric) DumpConfiguration() Config {
	sensorIDs := make([]sensorid.ID, len(m.sensors))
	for i, s := range m.sensors {
		sensorIDs[i] = s.ID()
	}
	return Config{
		ID:         m.id,
		Metadata:   m.metadata,
		Operation:  m.op,
		TimeScope:  m.scope,
		DurationMs: m.durationMs,
		SensorIDs:  sensorIDs,
	}
}

// IsTimerRequired reports whether the metric needs to be ticked by a
// report timer rather than purely driven by sensor-change signals:
// true iff its time-scope accumulates over time or its collection
// function is time-weighted.
func (m *Metric) IsTimerRequired() bool {
	if m.scope == collect.Interval || m.scope == collect.Startup {
		return true
	}
	return m.op == collect.Average || m.op == collect.Summation
}
