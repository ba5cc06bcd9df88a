package bus

import (
	"sort"
	"sync"
)

// PresenceEventKind names a trigger-presence transition.
type PresenceEventKind int

const (
	TriggerAdded PresenceEventKind = iota
	TriggerRemoved
)

// PresenceEvent is broadcast whenever a trigger is added to or removed
// from the trigger manager, so reports holding a reference to the
// trigger's report IDs can react without a hard pointer back to it.
type PresenceEvent struct {
	Kind      PresenceEventKind
	TriggerID string
	ReportIDs []string
}

// Unsubscribe removes a previously registered PresenceBus listener.
// Calling it more than once is a no-op.
type Unsubscribe func()

// PresenceBus is a single-process, synchronous pub/sub for
// PresenceEvent, matching the cooperative single-threaded runtime
// described for the rest of the core: Publish dispatches to every
// subscriber inline, in subscription order.
type PresenceBus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(PresenceEvent)
}

// NewPresenceBus returns a ready-to-use bus.
func NewPresenceBus() *PresenceBus {
	return &PresenceBus{listeners: make(map[int]func(PresenceEvent))}
}

// Subscribe registers fn to receive every future PresenceEvent. The
// returned Unsubscribe detaches fn.
func (b *PresenceBus) Subscribe(fn func(PresenceEvent)) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber. A subscriber added
// during Publish will not observe this delivery, matching §4.1's
// "listeners may be added during a dispatch but will not observe the
// current dispatch" rule applied consistently across the core.
func (b *PresenceBus) Publish(ev PresenceEvent) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]func(PresenceEvent), 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range snapshot {
		fn(ev)
	}
}
