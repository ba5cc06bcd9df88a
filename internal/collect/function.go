// Package collect implements the collection functions and time-scoped
// windows that reduce a stream of (timestamp, value) samples into a
// single metric value, per spec §4.2/§4.3. Each reducer is a small
// value behind the Function interface rather than a virtual-dispatch
// chain, mirroring the teacher's RollingMetric/Backend
// interface-by-value style.
package collect

import "github.com/thisdougb/telemetryd/internal/reading"

// Operation names a collection function.
type Operation int

const (
	Single Operation = iota
	Min
	Max
	Average
	Summation
)

func (o Operation) String() string {
	switch o {
	case Single:
		return "single"
	case Min:
		return "min"
	case Max:
		return "max"
	case Average:
		return "average"
	case Summation:
		return "summation"
	default:
		return "unknown"
	}
}

// ParseOperation maps a configuration string to an Operation.
func ParseOperation(s string) (Operation, bool) {
	switch s {
	case "single":
		return Single, true
	case "min":
		return Min, true
	case "max":
		return Max, true
	case "average":
		return Average, true
	case "summation":
		return Summation, true
	default:
		return 0, false
	}
}

// Function reduces a non-empty, time-ordered slice of readings, as of
// "now", into a single value.
type Function interface {
	// Calculate reduces readings (ordered by TimestampMs ascending) as
	// of now into a single value. readings is never mutated.
	Calculate(readings []reading.Item, nowMs int64) float64

	// CalculateStartup computes the same result as Calculate, then
	// compacts readings in place so that a later call with a later now
	// reproduces the correct result without retaining unbounded
	// history. Used only by the "startup" time scope (§4.3).
	CalculateStartup(readings *[]reading.Item, nowMs int64) float64
}

// New returns the reducer for op.
func New(op Operation) Function {
	switch op {
	case Single:
		return singleFn{}
	case Min:
		return minFn{}
	case Max:
		return maxFn{}
	case Average:
		return averageFn{}
	case Summation:
		return summationFn{}
	default:
		// Defensive fallback; op is validated at report/metric
		// construction time so this path is not expected to run.
		return singleFn{}
	}
}
