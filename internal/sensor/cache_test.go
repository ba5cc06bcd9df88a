package sensor

import (
	"testing"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/sensorid"
)

func TestCacheInternsByIdentity(t *testing.T) {
	c := NewCache(bus.NewFake())
	id := testID()

	h1 := c.Acquire(id)
	h2 := c.Acquire(id)

	if h1 != h2 {
		t.Fatal("expected the same handle for the same identity")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheSweepsDeadEntriesLazily(t *testing.T) {
	c := NewCache(bus.NewFake())
	id := testID()

	h := c.Acquire(id)
	c.Release(h)

	if c.Len() != 1 {
		t.Fatalf("expected dead entry to remain until next Acquire, Len() = %d", c.Len())
	}

	other := sensorid.ID{Transport: "dbus", Service: "xyz.svc", Path: "/xyz/sensors/other"}
	c.Acquire(other)

	if c.Len() != 1 {
		t.Fatalf("expected sweep to have reaped the dead entry, Len() = %d", c.Len())
	}
	if _, ok := c.Lookup(id); ok {
		t.Fatal("expected dead entry to be gone after sweep")
	}
}
