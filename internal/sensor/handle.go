// Package sensor implements the sensor handle and process-wide sensor
// cache of spec §4.1/§4.2 (numbering per the telemetry core design):
// one Handle per unique (transport, service, path) triple, fanning out
// reads to registered listeners, plus a Cache that interns handles by
// identity.
package sensor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/sensorid"
	"go.uber.org/zap"
)

// Listener receives sensor updates. Handle holds listeners by strong
// reference behind an explicit-unsubscribe token (Go has no stable
// equivalent of a weak pointer usable across GC versions), so callers
// must Unsubscribe when they stop caring about a sensor.
type Listener interface {
	// SensorUpdated is the three-argument form: the sensor has a value,
	// either freshly read and changed, or delivered on registration.
	SensorUpdated(h *Handle, timestampMs int64, value float64)

	// SensorRefreshed is the two-argument form: a read completed but
	// the value is unchanged from the cache, or there is no cached
	// value yet at registration time.
	SensorRefreshed(h *Handle, timestampMs int64)
}

// Unsubscribe detaches a previously registered Listener.
type Unsubscribe func()

// Handle is the single coherent view of one external-bus sensor
// shared by every metric and threshold that reads it.
type Handle struct {
	id        sensorid.ID
	transport bus.Transport

	mu              sync.Mutex
	hasValue        bool
	lastValue       float64
	lastTimestampMs int64
	listeners       map[int]Listener
	nextListenerID  int

	reading int32 // UniqueCall guard: 1 while an async_read is in flight

	scheduleMu sync.Mutex
	cancel     context.CancelFunc

	subscribeMu sync.Mutex
	subCancel   context.CancelFunc

	refs int32

	onRead func(transport string, err error)
}

// New constructs a handle for id. Callers normally obtain handles from
// a Cache rather than calling this directly.
func New(id sensorid.ID, transport bus.Transport) *Handle {
	return &Handle{
		id:        id,
		transport: transport,
		listeners: make(map[int]Listener),
	}
}

// ID returns the handle's identity.
func (h *Handle) ID() sensorid.ID { return h.id }

// SetOnRead installs an optional callback invoked after every AsyncRead
// attempt with the sensor's transport name and the resulting error (nil
// on success), for self-observability.
func (h *Handle) SetOnRead(onRead func(transport string, err error)) {
	h.onRead = onRead
}

// RegisterListener attaches l. If a cached value exists, l is
// immediately notified with it; otherwise l receives the no-value
// form. A listener added during a dispatch (from inside another
// listener's callback) does not observe that in-flight dispatch.
func (h *Handle) RegisterListener(l Listener) Unsubscribe {
	h.mu.Lock()
	id := h.nextListenerID
	h.nextListenerID++
	h.listeners[id] = l
	hasValue, value, ts := h.hasValue, h.lastValue, h.lastTimestampMs
	h.mu.Unlock()

	if hasValue {
		l.SensorUpdated(h, ts, value)
	} else {
		l.SensorRefreshed(h, ts)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// AsyncRead performs a single-shot read. A read already in flight
// makes this call a no-op (the UniqueCall contract); the caller
// observes no error and no dispatch from the redundant call.
func (h *Handle) AsyncRead(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&h.reading, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&h.reading, 0)

	value, err := h.transport.GetProperty(ctx, h.id.Service, h.id.Path, sensorValueIface, "Value")
	now := time.Now().UnixMilli()
	if h.onRead != nil {
		h.onRead(h.id.Transport, err)
	}
	if err != nil {
		obslog.Warn(ctx, "sensor read failed", zap.String("sensor", h.id.String()), zap.Error(err))
		return errs.New(errs.TransportIO, "sensor.Handle.AsyncRead", err)
	}

	h.dispatch(now, value)
	return nil
}

// dispatch applies a fresh (timestamp, value) pair — from a completed
// AsyncRead or a pushed change notification — and fans it out to
// listeners in registration order, collapsing to the unchanged form
// when the value hasn't moved.
func (h *Handle) dispatch(timestampMs int64, value float64) {
	h.mu.Lock()
	changed := !h.hasValue || h.lastValue != value
	h.hasValue = true
	h.lastValue = value
	h.lastTimestampMs = timestampMs
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, h.listeners[id])
	}
	h.mu.Unlock()

	for _, l := range snapshot {
		if changed {
			l.SensorUpdated(h, timestampMs, value)
		} else {
			l.SensorRefreshed(h, timestampMs)
		}
	}
}

// Schedule starts periodic AsyncRead at interval. Calling Schedule
// again while already scheduled is a no-op (idempotent; timers do not
// stack). The schedule stops when ctx is canceled or Stop is called.
func (h *Handle) Schedule(ctx context.Context, interval time.Duration) {
	h.scheduleMu.Lock()
	defer h.scheduleMu.Unlock()
	if h.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = h.AsyncRead(loopCtx)
			}
		}
	}()
}

// Stop cancels any scheduled polling. Subscriptions are left intact.
// Calling Stop when nothing is scheduled is a no-op.
func (h *Handle) Stop() {
	h.scheduleMu.Lock()
	defer h.scheduleMu.Unlock()
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
}

// Subscribe opens the transport's change-notification stream for this
// sensor and dispatches every pushed "Value" update to listeners the
// same way AsyncRead dispatches a polled one. Calling Subscribe again
// while already subscribed is a no-op. The subscription runs until ctx
// is canceled or StopSubscription is called; a transport that closes
// the stream on its own is not retried.
func (h *Handle) Subscribe(ctx context.Context) error {
	h.subscribeMu.Lock()
	defer h.subscribeMu.Unlock()
	if h.subCancel != nil {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := h.transport.SubscribePropertiesChanged(subCtx, h.id.Service, h.id.Path, sensorValueIface)
	if err != nil {
		cancel()
		return errs.New(errs.TransportIO, "sensor.Handle.Subscribe", err)
	}
	h.subCancel = cancel

	go h.consumeChanges(subCtx, ch)
	return nil
}

// StopSubscription cancels a running Subscribe. A no-op if not subscribed.
func (h *Handle) StopSubscription() {
	h.subscribeMu.Lock()
	defer h.subscribeMu.Unlock()
	if h.subCancel == nil {
		return
	}
	h.subCancel()
	h.subCancel = nil
}

func (h *Handle) consumeChanges(ctx context.Context, ch <-chan bus.PropertiesChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			value, ok := evt.Changed["Value"]
			if !ok {
				continue
			}
			h.dispatch(time.Now().UnixMilli(), value)
		}
	}
}

// addRef and release implement the reference count the Cache uses to
// decide when a handle is eligible for sweeping.
func (h *Handle) addRef() int32  { return atomic.AddInt32(&h.refs, 1) }
func (h *Handle) release() int32 { return atomic.AddInt32(&h.refs, -1) }

// sensorValueIface is the bus interface name the core reads "Value" from.
const sensorValueIface = "xyz.openbmc_project.Sensor.Value"
