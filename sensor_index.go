package telemetryd

import (
	"sync"

	"github.com/thisdougb/telemetryd/internal/bus"
)

// sensorIndex maps a bare sensor path, as carried in stored report
// configuration, to the bus service that currently owns it.
// Stored configuration only records paths (spec §6's MetricParam has
// no service field), so the facade must rediscover this mapping
// itself rather than ask the sensor cache, which is keyed by the full
// (transport, service, path) triple.
type sensorIndex struct {
	mu      sync.RWMutex
	service map[string]string
}

func newSensorIndex() *sensorIndex {
	return &sensorIndex{service: make(map[string]string)}
}

func (idx *sensorIndex) reset(entries []bus.SubtreeEntry) {
	next := make(map[string]string, len(entries))
	for _, e := range entries {
		if len(e.Services) == 0 {
			continue
		}
		next[e.Path] = e.Services[0].Service
	}
	idx.mu.Lock()
	idx.service = next
	idx.mu.Unlock()
}

func (idx *sensorIndex) serviceFor(path string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	service, ok := idx.service[path]
	return service, ok
}
