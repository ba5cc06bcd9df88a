package metric

import (
	"testing"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/collect"
	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
)

func newTestSensor() (*sensor.Handle, *bus.Fake) {
	fake := bus.NewFake()
	id := sensorid.ID{Transport: "dbus", Service: "xyz.svc", Path: "/xyz/sensors/temp0"}
	return sensor.New(id, fake), fake
}

// Scenario 1 (spec §8): periodic single-sensor average over interval(100ms).
func TestMetricAveragePublishesScenarioOne(t *testing.T) {
	s, _ := newTestSensor()
	m, err := New("M", "meta", collect.Average, collect.Interval, 100, []*sensor.Handle{s})
	if err != nil {
		t.Fatal(err)
	}
	m.Initialize()
	defer m.Deinitialize()

	m.SensorUpdated(s, 0, 10.0)
	m.SensorUpdated(s, 50, 20.0)

	vals := m.GetUpdatedReadings(100)
	if len(vals) != 1 {
		t.Fatalf("len(vals) = %d, want 1", len(vals))
	}
	got := float64(vals[0].Value)
	want := 15.0
	if got != want {
		t.Fatalf("value = %v, want %v", got, want)
	}
}

func TestMetricRejectsEmptySensorList(t *testing.T) {
	if _, err := New("M", "", collect.Single, collect.Point, 0, nil); err == nil {
		t.Fatal("expected error for empty sensor list")
	}
}

func TestMetricOnChangeFiresOnlyOnMaterialChange(t *testing.T) {
	s, _ := newTestSensor()
	m, err := New("M", "", collect.Single, collect.Point, 0, []*sensor.Handle{s})
	if err != nil {
		t.Fatal(err)
	}
	m.Initialize()
	defer m.Deinitialize()

	calls := 0
	m.SetOnChange(func(int) { calls++ })

	m.SensorUpdated(s, 0, 1)
	m.SensorUpdated(s, 100, 1)
	m.SensorUpdated(s, 200, 2)

	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (first reading + the transition to 2)", calls)
	}
}

func TestMetricInitializeIsIdempotent(t *testing.T) {
	s, _ := newTestSensor()
	m, err := New("M", "", collect.Single, collect.Point, 0, []*sensor.Handle{s})
	if err != nil {
		t.Fatal(err)
	}
	m.Initialize()
	m.Initialize()

	m.Deinitialize()
	// A second deinitialize should not panic even though listeners are gone.
	m.Deinitialize()
}

func TestIsTimerRequired(t *testing.T) {
	s, _ := newTestSensor()

	point, _ := New("M", "", collect.Single, collect.Point, 0, []*sensor.Handle{s})
	if point.IsTimerRequired() {
		t.Fatal("point+single should be purely event-driven")
	}

	interval, _ := New("M", "", collect.Single, collect.Interval, 1000, []*sensor.Handle{s})
	if !interval.IsTimerRequired() {
		t.Fatal("interval scope should require a timer")
	}

	avg, _ := New("M", "", collect.Average, collect.Point, 0, []*sensor.Handle{s})
	if !avg.IsTimerRequired() {
		t.Fatal("time-weighted op should require a timer")
	}
}
