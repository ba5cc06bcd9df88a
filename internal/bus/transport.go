// Package bus defines the core's two external-bus contracts: the
// Transport the engines consume to discover and read sensors (§6,
// "Sensor Transport"), and an in-process typed pub/sub for
// trigger-presence events (§4.8/§9) that keeps triggers and reports
// decoupled.
package bus

import "context"

// ServiceIfaces is one bus service exposing a sensor path, with the
// interfaces it implements on that path.
type ServiceIfaces struct {
	Service    string
	Interfaces []string
}

// SubtreeEntry is one discovered sensor path and the services behind it.
type SubtreeEntry struct {
	Path     string
	Services []ServiceIfaces
}

// PropertiesChanged is one signal delivery from SubscribePropertiesChanged.
// The core only ever looks at the "Value" key.
type PropertiesChanged struct {
	Changed     map[string]float64
	Invalidated []string
}

// Transport is the Sensor Transport contract of §6. Implementations
// talk to whatever external bus carries sensor data; the core depends
// only on this interface, never on a concrete transport.
type Transport interface {
	// GetSubtree discovers sensor paths under root up to depth,
	// restricted to services implementing one of interfaces.
	GetSubtree(ctx context.Context, root string, depth int, interfaces []string) ([]SubtreeEntry, error)

	// GetProperty reads a single property, converting an integral
	// variant to float64 per §6.
	GetProperty(ctx context.Context, service, path, iface, prop string) (float64, error)

	// SubscribePropertiesChanged opens a change-notification stream for
	// one object path and interface. The returned channel is closed
	// when ctx is canceled or the subscription ends.
	SubscribePropertiesChanged(ctx context.Context, service, path, iface string) (<-chan PropertiesChanged, error)
}
