package collect

import "github.com/thisdougb/telemetryd/internal/reading"

// singleFn is the identity reducer: the most recent sample's value.
type singleFn struct{}

func (singleFn) Calculate(readings []reading.Item, _ int64) float64 {
	return readings[len(readings)-1].Value
}

func (f singleFn) CalculateStartup(readings *[]reading.Item, nowMs int64) float64 {
	result := f.Calculate(*readings, nowMs)
	*readings = []reading.Item{{TimestampMs: nowMs, Value: result}}
	return result
}
