package threshold

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/storage"
)

func newManagerTriggerParams(id string, s SensorSpec) Params {
	return Params{
		ID:        id,
		Name:      id,
		Numeric:   []NumericKind{{Type: UpperCritical, Direction: Either, Value: 50}},
		Sensors:   []SensorSpec{s},
		ReportIDs: []string{"R1"},
	}
}

func TestManagerRejectsDuplicateID(t *testing.T) {
	mgr := NewManager(10, idcheck.Limits{}, nil, bus.NewPresenceBus(), nil, 3)
	s := SensorSpec{Path: "/xyz/sensors/temp0", Handle: newTestSensor()}

	if _, err := mgr.AddTrigger(newManagerTriggerParams("T1", s)); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.AddTrigger(newManagerTriggerParams("T1", s)); err == nil {
		t.Fatal("expected duplicate ID to be rejected")
	}
}

func TestManagerEnforcesCountLimit(t *testing.T) {
	mgr := NewManager(1, idcheck.Limits{}, nil, bus.NewPresenceBus(), nil, 3)
	s := SensorSpec{Path: "/xyz/sensors/temp0", Handle: newTestSensor()}

	if _, err := mgr.AddTrigger(newManagerTriggerParams("T1", s)); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.AddTrigger(newManagerTriggerParams("T2", s)); err == nil {
		t.Fatal("expected resource_limit error at cap")
	}
}

func TestManagerRejectsMalformedID(t *testing.T) {
	mgr := NewManager(10, idcheck.Limits{MaxSegmentLen: 8, MaxTotalLen: 20}, nil, bus.NewPresenceBus(), nil, 3)
	s := SensorSpec{Path: "/xyz/sensors/temp0", Handle: newTestSensor()}

	_, err := mgr.AddTrigger(newManagerTriggerParams("Trig!", s))
	if err == nil {
		t.Fatal("expected id with invalid character to be rejected")
	}
	if errs.KindOf(err) != errs.InvalidArgument {
		t.Fatalf("kind = %v, want invalid_argument", errs.KindOf(err))
	}
}

func TestManagerRemoveTrigger(t *testing.T) {
	mgr := NewManager(10, idcheck.Limits{}, nil, bus.NewPresenceBus(), nil, 3)
	s := SensorSpec{Path: "/xyz/sensors/temp0", Handle: newTestSensor()}
	mgr.AddTrigger(newManagerTriggerParams("T1", s))

	if err := mgr.RemoveTrigger("T1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := mgr.Get("T1"); ok {
		t.Fatal("expected trigger to be gone after remove")
	}
	if err := mgr.RemoveTrigger("T1"); err == nil {
		t.Fatal("expected not_found removing twice")
	}
}

func TestManagerPersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemoryBackend()
	presence := bus.NewPresenceBus()
	s := SensorSpec{Path: "/xyz/sensors/temp0", Handle: newTestSensor()}

	mgr := NewManager(10, idcheck.Limits{}, store, presence, nil, 3)
	if _, err := mgr.AddTrigger(newManagerTriggerParams("T1", s)); err != nil {
		t.Fatal(err)
	}

	reopened := NewManager(10, idcheck.Limits{}, store, presence, nil, 3)
	reopened.Restore(context.Background(), func(service, path string) (SensorSpec, error) {
		return SensorSpec{Path: path, Handle: newTestSensor()}, nil
	})

	time.Sleep(50 * time.Millisecond) // restore resolves asynchronously
	if _, ok := reopened.Get("T1"); !ok {
		t.Fatal("expected restored trigger T1")
	}
}

// §7: a trigger whose sensors never resolve is retried retryCap times,
// then discarded without being registered.
func TestManagerDiscardsTriggerAfterRetriesExhausted(t *testing.T) {
	store := storage.NewMemoryBackend()
	s := SensorSpec{Path: "/xyz/sensors/temp0", Handle: newTestSensor()}

	mgr := NewManager(10, idcheck.Limits{}, store, bus.NewPresenceBus(), nil, 3)
	mgr.AddTrigger(newManagerTriggerParams("T1", s))

	var attempts int32
	reopened := NewManager(10, idcheck.Limits{}, store, bus.NewPresenceBus(), nil, 2)
	reopened.Restore(context.Background(), func(service, path string) (SensorSpec, error) {
		atomic.AddInt32(&attempts, 1)
		return SensorSpec{}, errs.New(errs.TransportIO, "test", nil)
	})

	time.Sleep(1500 * time.Millisecond)
	if _, ok := reopened.Get("T1"); ok {
		t.Fatal("expected trigger to be discarded after exhausting retries")
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("resolve attempts = %d, want 2", got)
	}
}
