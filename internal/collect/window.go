package collect

import (
	"github.com/thisdougb/telemetryd/internal/errs"
	"github.com/thisdougb/telemetryd/internal/reading"
)

// TimeScope names a window's retention policy, per spec §4.3.
type TimeScope int

const (
	// Point retains only the most recent sample.
	Point TimeScope = iota
	// Interval retains every sample within a trailing duration.
	Interval
	// Startup retains every sample since the report started, compacted
	// down to a handful of items by the reducer's CalculateStartup.
	Startup
)

func (s TimeScope) String() string {
	switch s {
	case Point:
		return "point"
	case Interval:
		return "interval"
	case Startup:
		return "startup"
	default:
		return "unknown"
	}
}

// ParseTimeScope maps a configuration string to a TimeScope.
func ParseTimeScope(s string) (TimeScope, bool) {
	switch s {
	case "point":
		return Point, true
	case "interval":
		return Interval, true
	case "startup":
		return Startup, true
	default:
		return 0, false
	}
}

// Window accumulates samples for one metric and reduces them through
// a Function on demand. It is not safe for concurrent use; callers
// (internal/metric) hold their own lock.
type Window struct {
	scope     TimeScope
	intervalMs int64
	fn        Function

	readings []reading.Item
	last     reading.Item
	hasLast  bool
}

// NewPointWindow returns a window that keeps only the latest sample.
func NewPointWindow(fn Function) *Window {
	return &Window{scope: Point, fn: fn}
}

// NewStartupWindow returns a window that keeps every sample since
// construction, compacting via the reducer at query time.
func NewStartupWindow(fn Function) *Window {
	return &Window{scope: Startup, fn: fn}
}

// NewIntervalWindow returns a window that keeps samples within the
// trailing intervalMs milliseconds. intervalMs must be positive.
func NewIntervalWindow(fn Function, intervalMs int64) (*Window, error) {
	if intervalMs <= 0 {
		return nil, errs.New(errs.InvalidArgument, "collect.NewIntervalWindow", nil)
	}
	return &Window{scope: Interval, intervalMs: intervalMs, fn: fn}, nil
}

// Add appends a new sample. For Point it replaces the single retained
// sample; for Interval and Startup it appends to the backing slice.
func (w *Window) Add(item reading.Item) {
	w.last = item
	w.hasLast = true

	switch w.scope {
	case Point:
		w.readings = []reading.Item{item}
	default:
		w.readings = append(w.readings, item)
	}
}

// Empty reports whether any sample has been added yet.
func (w *Window) Empty() bool {
	return !w.hasLast
}

// Calculate reduces the window's retained samples as of nowMs,
// compacting an Interval window's expired head and a Startup window's
// full history as a side effect.
func (w *Window) Calculate(nowMs int64) float64 {
	if w.Empty() {
		return 0
	}

	switch w.scope {
	case Point:
		return w.fn.Calculate(w.readings, nowMs)
	case Interval:
		w.trimInterval(nowMs)
		return w.fn.Calculate(w.readings, nowMs)
	case Startup:
		return w.fn.CalculateStartup(&w.readings, nowMs)
	default:
		return w.fn.Calculate(w.readings, nowMs)
	}
}

// trimInterval drops samples older than nowMs-intervalMs, re-clamping
// the new head's timestamp to the window boundary so the reducer's
// time-weighting over the surviving head segment stays correct.
func (w *Window) trimInterval(nowMs int64) {
	cutoff := nowMs - w.intervalMs
	i := 0
	for i < len(w.readings)-1 && w.readings[i+1].TimestampMs <= cutoff {
		i++
	}
	if i == 0 {
		if len(w.readings) > 0 && w.readings[0].TimestampMs < cutoff {
			w.readings[0].TimestampMs = cutoff
		}
		return
	}
	head := w.readings[i]
	if head.TimestampMs < cutoff {
		head.TimestampMs = cutoff
	}
	w.readings = append([]reading.Item{head}, w.readings[i+1:]...)
}

// UpdateLastValue overwrites the most recent sample's value without
// changing its timestamp, reporting whether the value actually
// changed. Used by on-change metrics to detect a no-op update.
func (w *Window) UpdateLastValue(v float64) bool {
	if !w.hasLast {
		w.Add(reading.Item{Value: v})
		return true
	}
	if w.last.Value == v {
		return false
	}
	w.last.Value = v
	if len(w.readings) > 0 {
		w.readings[len(w.readings)-1].Value = v
	}
	return true
}

// Last returns the most recently added sample.
func (w *Window) Last() (reading.Item, bool) {
	return w.last, w.hasLast
}
