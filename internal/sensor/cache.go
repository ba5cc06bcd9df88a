package sensor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/obslog"
	"github.com/thisdougb/telemetryd/internal/sensorid"
	"go.uber.org/zap"
)

// Cache interns Handles by SensorId so that every metric and threshold
// reading the same bus sensor shares one Handle. It is the process-wide
// cache of §3/§5, scoped to a Cache value rather than a package-level
// global so tests stay hermetic.
type Cache struct {
	mu        sync.Mutex
	transport bus.Transport
	handles   map[sensorid.ID]*Handle
	onRead    func(transport string, err error)
}

// NewCache returns an empty cache backed by transport.
func NewCache(transport bus.Transport) *Cache {
	return &Cache{
		transport: transport,
		handles:   make(map[sensorid.ID]*Handle),
	}
}

// SetOnRead installs an optional self-observability callback applied to
// every handle the cache creates from this point on, including ones
// already interned.
func (c *Cache) SetOnRead(onRead func(transport string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRead = onRead
	for _, h := range c.handles {
		h.SetOnRead(onRead)
	}
}

// Acquire returns the live handle for id, creating one if needed, and
// increments its reference count. Every Acquire must be matched by a
// Release when the caller no longer needs the handle.
func (c *Cache) Acquire(id sensorid.ID) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[id]; ok {
		h.addRef()
		return h
	}

	c.sweepLocked()

	h := New(id, c.transport)
	h.SetOnRead(c.onRead)
	h.addRef()
	c.handles[id] = h

	// Arm change-notification delivery alongside polling (§4.1): a newly
	// interned handle subscribes for the rest of the process lifetime,
	// torn down when the handle is swept.
	if err := h.Subscribe(context.Background()); err != nil {
		obslog.Warn(context.Background(), "sensor subscribe failed", zap.String("sensor", id.String()), zap.Error(err))
	}

	return h
}

// Release drops a reference acquired with Acquire. The handle is not
// removed immediately; dead entries are reaped lazily on the next
// Acquire, per §5.
func (c *Cache) Release(h *Handle) {
	h.release()
}

// sweepLocked removes every handle with no live references. Callers
// must hold c.mu.
func (c *Cache) sweepLocked() {
	for id, h := range c.handles {
		if atomic.LoadInt32(&h.refs) <= 0 {
			h.Stop()
			h.StopSubscription()
			delete(c.handles, id)
		}
	}
}

// Len reports the number of interned handles, live or not-yet-swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Lookup returns the cached handle for id without creating one or
// changing its reference count, and whether it was found.
func (c *Cache) Lookup(id sensorid.ID) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[id]
	return h, ok
}
