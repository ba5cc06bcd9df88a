// Package sensorid defines the identity of a sensor on the external bus.
package sensorid

import "fmt"

// ID uniquely identifies a sensor: the transport type tag that reads
// it, the service that owns it, and its object path. Equality and
// ordering are lexicographic over (Transport, Service, Path).
type ID struct {
	Transport string
	Service   string
	Path      string
}

// String renders a stable, log-friendly representation.
func (id ID) String() string {
	return fmt.Sprintf("%s:%s%s", id.Transport, id.Service, id.Path)
}

// Less reports whether id sorts before other, lexicographically over
// (Transport, Service, Path).
func (id ID) Less(other ID) bool {
	if id.Transport != other.Transport {
		return id.Transport < other.Transport
	}
	if id.Service != other.Service {
		return id.Service < other.Service
	}
	return id.Path < other.Path
}

// Equal reports field-wise equality.
func (id ID) Equal(other ID) bool {
	return id.Transport == other.Transport && id.Service == other.Service && id.Path == other.Path
}
