/*
Package telemetryd implements a BMC-style telemetry core: a metric
aggregation engine, a report scheduler with a readings pipeline, and a
numeric/discrete threshold and trigger evaluation engine, sitting on
top of a pluggable Sensor Transport.

A Service owns the sensor cache, the report and trigger managers, the
persistence backend, self-observability, and an HTTP+JSON object
surface standing in for the D-Bus management interface the design
describes abstractly.

Example:

	transport := mybus.NewTransport(conn) // caller-supplied bus.Transport

	svc, err := telemetryd.New(telemetryd.ConfigFromEnv(), transport)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", svc.ObjectSurface().Handler())
	mux.Handle("/metrics", svc.Metrics().Handler())
	http.ListenAndServe(":8080", mux)

Reports are scheduled periodically, on sensor change, or on request
(spec §4.5/§4.6); their readings buffer according to one of four
update policies and can emit a ReadingsUpdate event over the object
surface's webhook subscriber list. Triggers watch one or more sensors
for a numeric or discrete threshold crossing, optionally requiring the
crossing to persist for a dwell period before committing, and on
commit poke every report they are wired to (spec §4.7/§4.8).

Configuration is read from the environment (TELEMETRYD_MAX_REPORTS,
TELEMETRYD_MAX_TRIGGERS, TELEMETRYD_SENSORS_ROOT, and friends);
loading configuration files or providing a CLI entry point is out of
scope, exactly as the original design states. The concrete Sensor
Transport (talking to a real external bus) is likewise a caller
responsibility: this package depends only on the bus.Transport
interface.
*/
package telemetryd
