package threshold

import (
	"context"
	"sync"
	"time"

	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
)

// Action is invoked on every confirmed crossing (§4.7's commit). ctx
// is a fresh context.Background() with no correlation ID attached.
type Action func(ctx context.Context, triggerID, thresholdName, sensorName string, timestampMs int64, value float64)

// Kind discriminates a Threshold's variant.
type Kind int

const (
	Numeric Kind = iota
	Discrete
)

// dwellState is the per-sensor state of §4.7: the previous reading,
// the direction it arrived from, whether a dwell timer is armed, and
// the timer itself.
type dwellState struct {
	hasPrev       bool
	prevValue     float64
	prevDirection Direction
	dwellActive   bool
	timer         *time.Timer
	firstSeen     bool // discrete onChange only
}

// Threshold is a per-sensor predicate and dwell timer that fires
// Actions on confirmed crossings, per §4.7.
type Threshold struct {
	kind      Kind
	numeric   NumericKind
	discrete  DiscreteKind
	triggerID string
	name      string
	actions   []Action

	mu      sync.Mutex
	sensors map[sensorid.ID]*sensor.Handle
	unsubs  map[sensorid.ID]sensor.Unsubscribe
	state   map[sensorid.ID]*dwellState
}

// NewNumeric constructs a numeric threshold.
func NewNumeric(triggerID string, kind NumericKind, sensors []*sensor.Handle, actions []Action) *Threshold {
	return newThreshold(Numeric, triggerID, kind.Type.String(), sensors, actions, kind, DiscreteKind{})
}

// NewDiscrete constructs a discrete threshold.
func NewDiscrete(triggerID string, kind DiscreteKind, sensors []*sensor.Handle, actions []Action) *Threshold {
	return newThreshold(Discrete, triggerID, kind.Name, sensors, actions, NumericKind{}, kind)
}

func newThreshold(kind Kind, triggerID, name string, sensors []*sensor.Handle, actions []Action, numeric NumericKind, discrete DiscreteKind) *Threshold {
	t := &Threshold{
		kind:      kind,
		numeric:   numeric,
		discrete:  discrete,
		triggerID: triggerID,
		name:      name,
		actions:   actions,
		sensors:   make(map[sensorid.ID]*sensor.Handle),
		unsubs:    make(map[sensorid.ID]sensor.Unsubscribe),
		state:     make(map[sensorid.ID]*dwellState),
	}
	for _, s := range sensors {
		t.sensors[s.ID()] = s
		t.state[s.ID()] = &dwellState{}
	}
	return t
}

// Kind returns whether the threshold is Numeric or Discrete.
func (t *Threshold) Kind() Kind { return t.kind }

// Name returns the threshold's identity within its trigger.
func (t *Threshold) Name() string { return t.name }

// Initialize attaches the threshold as a listener on every sensor.
func (t *Threshold) Initialize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sensors {
		if _, ok := t.unsubs[id]; ok {
			continue
		}
		t.unsubs[id] = s.RegisterListener(t)
	}
}

// Deinitialize detaches from every sensor and cancels any armed timers.
func (t *Threshold) Deinitialize() {
	t.mu.Lock()
	unsubs := t.unsubs
	t.unsubs = make(map[sensorid.ID]sensor.Unsubscribe)
	for _, st := range t.state {
		stopTimer(st)
	}
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// UpdateSensors replaces the threshold's sensor set: unregisters from
// removed sensors, registers with added ones, and keeps dwell state
// for sensors present in both sets, per §4.7.
func (t *Threshold) UpdateSensors(sensors []*sensor.Handle) {
	t.mu.Lock()
	newSet := make(map[sensorid.ID]*sensor.Handle, len(sensors))
	for _, s := range sensors {
		newSet[s.ID()] = s
	}

	for id, unsub := range t.unsubs {
		if _, keep := newSet[id]; !keep {
			delete(t.unsubs, id)
			delete(t.sensors, id)
			if st, ok := t.state[id]; ok {
				stopTimer(st)
				delete(t.state, id)
			}
			t.mu.Unlock()
			unsub()
			t.mu.Lock()
		}
	}

	var toRegister []*sensor.Handle
	for id, s := range newSet {
		if _, exists := t.sensors[id]; !exists {
			t.sensors[id] = s
			t.state[id] = &dwellState{}
			toRegister = append(toRegister, s)
		}
	}
	t.mu.Unlock()

	for _, s := range toRegister {
		t.mu.Lock()
		unsub := s.RegisterListener(t)
		t.unsubs[s.ID()] = unsub
		t.mu.Unlock()
	}
}

// SensorUpdated implements sensor.Listener: evaluates the crossing or
// value-match state machine for the sensor's new value.
func (t *Threshold) SensorUpdated(h *sensor.Handle, timestampMs int64, value float64) {
	id := h.ID()
	t.mu.Lock()
	st, ok := t.state[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	switch t.kind {
	case Numeric:
		t.evalNumericLocked(st, id, timestampMs, value)
	case Discrete:
		t.evalDiscreteLocked(st, id, timestampMs, value)
	}
	t.mu.Unlock()
}

// SensorRefreshed implements sensor.Listener's no-value form: a
// refresh carries no new value, so there is nothing to evaluate.
func (t *Threshold) SensorRefreshed(*sensor.Handle, int64) {}

// evalNumericLocked implements the §4.7 numeric state machine. Caller
// holds t.mu.
func (t *Threshold) evalNumericLocked(st *dwellState, id sensorid.ID, timestampMs int64, value float64) {
	threshold := t.numeric.Value

	if !st.hasPrev {
		st.hasPrev = true
		st.prevValue = value
		return
	}

	prev := st.prevValue
	crossedDecreasing := threshold < prev && threshold > value
	crossedIncreasing := threshold > prev && threshold < value

	if !crossedDecreasing && !crossedIncreasing && threshold == prev {
		switch st.prevDirection {
		case Decreasing:
			if threshold > value {
				crossedDecreasing = true
			}
		case Increasing:
			if threshold < value {
				crossedIncreasing = true
			}
		}
	}

	crossed := crossedDecreasing || crossedIncreasing
	if st.dwellActive && crossed {
		stopTimer(st)
	}

	if crossed && t.numeric.Direction.matches(crossedIncreasing, crossedDecreasing) {
		t.startTimerLocked(st, id, timestampMs, value)
	}

	switch {
	case value > prev:
		st.prevDirection = Increasing
	case value < prev:
		st.prevDirection = Decreasing
	default:
		st.prevDirection = Either
	}
	st.prevValue = value
}

// evalDiscreteLocked implements the §4.7 discrete state machine.
// Caller holds t.mu.
func (t *Threshold) evalDiscreteLocked(st *dwellState, id sensorid.ID, timestampMs int64, value float64) {
	if t.discrete.Value != nil {
		target := *t.discrete.Value
		if value == target {
			t.startTimerLocked(st, id, timestampMs, value)
		} else if st.dwellActive {
			stopTimer(st)
		}
		return
	}

	// onChange semantics: the first reading establishes baseline state.
	if !st.firstSeen {
		st.firstSeen = true
		return
	}
	t.startTimerLocked(st, id, timestampMs, value)
}

// startTimerLocked arms the dwell timer, or commits immediately when
// DwellMs is zero. Caller holds t.mu.
func (t *Threshold) startTimerLocked(st *dwellState, id sensorid.ID, timestampMs int64, value float64) {
	dwellMs := t.dwellMs()
	stopTimer(st)

	if dwellMs <= 0 {
		t.commit(id, t.commitTimestamp(timestampMs), value)
		return
	}

	st.dwellActive = true
	st.timer = time.AfterFunc(time.Duration(dwellMs)*time.Millisecond, func() {
		t.mu.Lock()
		if !st.dwellActive {
			t.mu.Unlock()
			return
		}
		st.dwellActive = false
		st.timer = nil
		t.mu.Unlock()
		t.commit(id, t.commitTimestamp(timestampMs), value)
	})
}

// commitTimestamp picks the timestamp a commit reports: numeric
// thresholds stamp the moment of commit (matching the original's
// clock->systemTimestamp(), which ignores the sample time), while
// discrete thresholds thread the sample's own timestamp through, per
// the original discrete_threshold.cpp commit.
func (t *Threshold) commitTimestamp(sampleTimestampMs int64) int64 {
	if t.kind == Discrete {
		return sampleTimestampMs
	}
	return time.Now().UnixMilli()
}

func (t *Threshold) dwellMs() int64 {
	if t.kind == Numeric {
		return t.numeric.DwellMs
	}
	return t.discrete.DwellMs
}

func stopTimer(st *dwellState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.dwellActive = false
}

// commit invokes every action with the confirmed crossing.
func (t *Threshold) commit(id sensorid.ID, timestampMs int64, value float64) {
	for _, action := range t.actions {
		action(context.Background(), t.triggerID, t.name, id.String(), timestampMs, value)
	}
}
