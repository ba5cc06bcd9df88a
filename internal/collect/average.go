package collect

import (
	"github.com/thisdougb/telemetryd/internal/reading"
)

// averageFn is the time-weighted average of the samples between the
// first reading and now: each sample's value is weighted by the
// duration (in milliseconds) it held, including a final segment that
// runs to now. Non-finite samples contribute neither value nor time.
type averageFn struct{}

func (averageFn) Calculate(readings []reading.Item, nowMs int64) float64 {
	var valueSum, timeSum float64

	for i := 0; i < len(readings)-1; i++ {
		dt := float64(readings[i+1].TimestampMs - readings[i].TimestampMs)
		if isFinite(readings[i].Value) {
			valueSum += readings[i].Value * dt
			timeSum += dt
		}
	}

	last := readings[len(readings)-1]
	dt := float64(nowMs - last.TimestampMs)
	if isFinite(last.Value) {
		valueSum += last.Value * dt
		timeSum += dt
	}

	if timeSum < 1 {
		timeSum = 1
	}
	return valueSum / timeSum
}

func (f averageFn) CalculateStartup(readings *[]reading.Item, nowMs int64) float64 {
	rs := *readings
	result := f.Calculate(rs, nowMs)

	if isFinite(result) {
		*readings = []reading.Item{
			{TimestampMs: rs[0].TimestampMs, Value: result},
			{TimestampMs: nowMs, Value: rs[len(rs)-1].Value},
		}
	}
	return result
}
