package collect

import (
	"github.com/thisdougb/telemetryd/internal/reading"
)

// summationFn accumulates value * duration-in-seconds across the
// samples between the first reading and now, with a final segment
// that runs to now. Unlike averageFn the result is not normalized by
// the elapsed time, so it represents an accumulated quantity (e.g.
// energy from power readings).
type summationFn struct{}

func (summationFn) Calculate(readings []reading.Item, nowMs int64) float64 {
	var sum float64

	for i := 0; i < len(readings)-1; i++ {
		dtSeconds := float64(readings[i+1].TimestampMs-readings[i].TimestampMs) / 1000
		if isFinite(readings[i].Value) {
			sum += readings[i].Value * dtSeconds
		}
	}

	last := readings[len(readings)-1]
	dtSeconds := float64(nowMs-last.TimestampMs) / 1000
	if isFinite(last.Value) {
		sum += last.Value * dtSeconds
	}

	return sum
}

func (f summationFn) CalculateStartup(readings *[]reading.Item, nowMs int64) float64 {
	rs := *readings
	result := f.Calculate(rs, nowMs)

	if len(rs) <= 2 || !isFinite(result) {
		return result
	}

	multiplier := float64(nowMs-rs[0].TimestampMs) / 1000
	if multiplier <= 0 {
		return result
	}

	prevValue := result / multiplier
	*readings = []reading.Item{
		{TimestampMs: rs[0].TimestampMs, Value: prevValue},
		{TimestampMs: nowMs, Value: rs[len(rs)-1].Value},
	}
	return result
}
