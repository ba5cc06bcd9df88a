package report

import (
	"context"
	"testing"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/collect"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/metric"
	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
	"github.com/thisdougb/telemetryd/internal/storage"
)

func newManagerParams(t *testing.T, id string) Params {
	t.Helper()
	fake := bus.NewFake()
	sid := sensorid.ID{Transport: "dbus", Service: "xyz.svc", Path: "/xyz/sensors/s0"}
	s := sensor.New(sid, fake)
	m, err := metric.New("M", "", collect.Single, collect.Point, 0, []*sensor.Handle{s})
	if err != nil {
		t.Fatal(err)
	}
	return Params{
		ID:            id,
		Name:          id,
		ReportingType: OnRequest,
		UpdatePolicy:  Overwrite,
		AppendLimit:   5,
		Metrics:       []MetricSpec{{Metric: m, SensorPaths: []string{"/xyz/sensors/s0"}}},
	}
}

func TestManagerRejectsDuplicateID(t *testing.T) {
	mgr := NewManager(10, 1000, 1000, 100, idcheck.Limits{}, nil, nil)
	ctx := context.Background()

	if _, err := mgr.AddReport(ctx, newManagerParams(t, "R1")); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.AddReport(ctx, newManagerParams(t, "R1")); err == nil {
		t.Fatal("expected duplicate ID to be rejected")
	}
}

func TestManagerEnforcesCountLimit(t *testing.T) {
	mgr := NewManager(1, 1000, 1000, 100, idcheck.Limits{}, nil, nil)
	ctx := context.Background()

	if _, err := mgr.AddReport(ctx, newManagerParams(t, "R1")); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.AddReport(ctx, newManagerParams(t, "R2")); err == nil {
		t.Fatal("expected resource_limit error at cap")
	}
}

func TestManagerRejectsMalformedID(t *testing.T) {
	mgr := NewManager(10, 1000, 1000, 100, idcheck.Limits{MaxSegmentLen: 8, MaxTotalLen: 20}, nil, nil)
	ctx := context.Background()

	_, err := mgr.AddReport(ctx, newManagerParams(t, "R1/sub/bad"))
	if err == nil {
		t.Fatal("expected id with two separators to be rejected")
	}
	if errs.KindOf(err) != errs.InvalidArgument {
		t.Fatalf("kind = %v, want invalid_argument", errs.KindOf(err))
	}
}

func TestManagerRemoveReport(t *testing.T) {
	mgr := NewManager(10, 1000, 1000, 100, idcheck.Limits{}, nil, nil)
	ctx := context.Background()
	mgr.AddReport(ctx, newManagerParams(t, "R1"))

	if err := mgr.RemoveReport("R1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := mgr.Get("R1"); ok {
		t.Fatal("expected report to be gone after remove")
	}
	if err := mgr.RemoveReport("R1"); err == nil {
		t.Fatal("expected not_found removing twice")
	}
}

// Scenario 6 (spec §8): persistence round-trip across a manager restart.
func TestManagerPersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemoryBackend()
	ctx := context.Background()

	mgr := NewManager(10, 1000, 1000, 100, idcheck.Limits{}, store, nil)
	p := newManagerParams(t, "R1")
	p.Persistent = true
	if _, err := mgr.AddReport(ctx, p); err != nil {
		t.Fatal(err)
	}
	original, _ := mgr.Get("R1")
	originalCfg := original.DumpConfiguration()

	reopened := NewManager(10, 1000, 1000, 100, idcheck.Limits{}, store, nil)
	reopened.Restore(ctx, func(params []MetricParam) ([]MetricSpec, error) {
		fake := bus.NewFake()
		sid := sensorid.ID{Transport: "dbus", Service: "xyz.svc", Path: params[0].SensorPaths[0]}
		s := sensor.New(sid, fake)
		op, _ := collect.ParseOperation(params[0].OperationType)
		scope, _ := collect.ParseTimeScope(params[0].CollectionTimeScope)
		m, err := metric.New(params[0].ID, params[0].Metadata, op, scope, params[0].CollectionDuration, []*sensor.Handle{s})
		if err != nil {
			return nil, err
		}
		return []MetricSpec{{Metric: m, SensorPaths: params[0].SensorPaths}}, nil
	})

	restored, ok := reopened.Get("R1")
	if !ok {
		t.Fatal("expected restored report R1")
	}
	restoredCfg := restored.DumpConfiguration()
	if restoredCfg.Name != originalCfg.Name || restoredCfg.ReportingType != originalCfg.ReportingType {
		t.Fatalf("restored config %+v != original %+v", restoredCfg, originalCfg)
	}

	snap := restored.Readings()
	if len(snap.Readings) != 0 {
		t.Fatalf("expected empty readings buffer before first scan, got %+v", snap.Readings)
	}
}
