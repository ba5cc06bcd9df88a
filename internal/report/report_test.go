package report

import (
	"context"
	"testing"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/collect"
	"github.com/thisdougb/telemetryd/internal/metric"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
)

func newTestMetric(t *testing.T, op collect.Operation, scope collect.TimeScope, durationMs int64) (*metric.Metric, *sensor.Handle) {
	t.Helper()
	fake := bus.NewFake()
	id := sensorid.ID{Transport: "dbus", Service: "xyz.svc", Path: "/xyz/sensors/s0"}
	s := sensor.New(id, fake)
	m, err := metric.New("M", "meta", op, scope, durationMs, []*sensor.Handle{s})
	if err != nil {
		t.Fatal(err)
	}
	return m, s
}

// Scenario 5 (spec §8): append wrap with limit 3 over four scans.
func TestAppendWrapWhenFull(t *testing.T) {
	m, s := newTestMetric(t, collect.Single, collect.Point, 0)
	r := New(Params{
		ID:            "R",
		ReportingType: OnRequest,
		UpdatePolicy:  AppendWrapWhenFull,
		AppendLimit:   3,
		Metrics:       []MetricSpec{{Metric: m, SensorPaths: []string{"/xyz/sensors/s0"}}},
	}, nil, nil)
	r.Start(context.Background())
	defer r.Stop()

	for i, v := range []float64{1, 2, 3, 4} {
		m.SensorUpdated(s, int64(i*100), v)
		r.Update(context.Background())
	}

	snap := r.Readings()
	if len(snap.Readings) != 3 {
		t.Fatalf("len = %d, want 3", len(snap.Readings))
	}
	want := []float64{2, 3, 4}
	for i, d := range snap.Readings {
		if float64(d.Value) != want[i] {
			t.Fatalf("readings = %+v, want values %v", snap.Readings, want)
		}
	}
}

func TestAppendStopWhenFullDropsExtra(t *testing.T) {
	m, s := newTestMetric(t, collect.Single, collect.Point, 0)
	r := New(Params{
		ID:            "R",
		ReportingType: OnRequest,
		UpdatePolicy:  AppendStopWhenFull,
		AppendLimit:   2,
		Metrics:       []MetricSpec{{Metric: m, SensorPaths: []string{"/xyz/sensors/s0"}}},
	}, nil, nil)
	r.Start(context.Background())
	defer r.Stop()

	for i, v := range []float64{1, 2, 3} {
		m.SensorUpdated(s, int64(i*100), v)
		r.Update(context.Background())
	}

	snap := r.Readings()
	if len(snap.Readings) != 2 {
		t.Fatalf("len = %d, want 2 (capped)", len(snap.Readings))
	}
}

func TestOverwritePolicyReplacesBuffer(t *testing.T) {
	m, s := newTestMetric(t, collect.Single, collect.Point, 0)
	r := New(Params{
		ID:            "R",
		ReportingType: OnRequest,
		UpdatePolicy:  Overwrite,
		AppendLimit:   5,
		Metrics:       []MetricSpec{{Metric: m, SensorPaths: []string{"/xyz/sensors/s0"}}},
	}, nil, nil)
	r.Start(context.Background())
	defer r.Stop()

	m.SensorUpdated(s, 0, 1)
	r.Update(context.Background())
	m.SensorUpdated(s, 100, 2)
	r.Update(context.Background())

	snap := r.Readings()
	if len(snap.Readings) != 1 || float64(snap.Readings[0].Value) != 2 {
		t.Fatalf("got %+v, want single reading of 2", snap.Readings)
	}
}

func TestOnChangeSuppressesFirstReading(t *testing.T) {
	m, s := newTestMetric(t, collect.Single, collect.Point, 0)
	var updates int
	r := New(Params{
		ID:            "R",
		ReportingType: OnChange,
		UpdatePolicy:  Overwrite,
		AppendLimit:   5,
		Actions:       Actions(EmitsReadingsUpdate),
		Metrics:       []MetricSpec{{Metric: m, SensorPaths: []string{"/xyz/sensors/s0"}}},
	}, nil, func(reading.Snapshot) { updates++ })
	r.Start(context.Background())
	defer r.Stop()

	m.SensorUpdated(s, 0, 10) // suppressed: first reading
	m.SensorUpdated(s, 100, 20)

	if updates != 1 {
		t.Fatalf("updates = %d, want 1 (second reading only)", updates)
	}
}
