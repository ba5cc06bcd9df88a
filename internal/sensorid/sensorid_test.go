package sensorid

import "testing"

func TestLess(t *testing.T) {
	a := ID{Transport: "dbus", Service: "a.svc", Path: "/x"}
	b := ID{Transport: "dbus", Service: "b.svc", Path: "/a"}

	if !a.Less(b) {
		t.Fatalf("expected %v < %v", a, b)
	}
	if b.Less(a) {
		t.Fatalf("expected %v !< %v", b, a)
	}
}

func TestEqual(t *testing.T) {
	a := ID{Transport: "dbus", Service: "a.svc", Path: "/x"}
	c := ID{Transport: "dbus", Service: "a.svc", Path: "/x"}
	if !a.Equal(c) {
		t.Fatalf("expected equal")
	}
}
