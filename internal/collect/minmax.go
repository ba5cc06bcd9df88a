package collect

import (
	"math"

	"github.com/thisdougb/telemetryd/internal/reading"
)

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// minFn finds the smallest finite value, falling back to the first
// sample's (non-finite) value when every sample is non-finite.
type minFn struct{}

func (minFn) Calculate(readings []reading.Item, _ int64) float64 {
	hasFinite := false
	var best float64
	for _, r := range readings {
		if !isFinite(r.Value) {
			continue
		}
		if !hasFinite || r.Value < best {
			best = r.Value
			hasFinite = true
		}
	}
	if hasFinite {
		return best
	}
	return readings[0].Value
}

func (f minFn) CalculateStartup(readings *[]reading.Item, nowMs int64) float64 {
	result := f.Calculate(*readings, nowMs)
	*readings = []reading.Item{{TimestampMs: nowMs, Value: result}}
	return result
}

// maxFn finds the largest finite value, falling back to the first
// sample's (non-finite) value when every sample is non-finite.
type maxFn struct{}

func (maxFn) Calculate(readings []reading.Item, _ int64) float64 {
	hasFinite := false
	var best float64
	for _, r := range readings {
		if !isFinite(r.Value) {
			continue
		}
		if !hasFinite || r.Value > best {
			best = r.Value
			hasFinite = true
		}
	}
	if hasFinite {
		return best
	}
	return readings[0].Value
}

func (f maxFn) CalculateStartup(readings *[]reading.Item, nowMs int64) float64 {
	result := f.Calculate(*readings, nowMs)
	*readings = []reading.Item{{TimestampMs: nowMs, Value: result}}
	return result
}
