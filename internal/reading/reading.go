// Package reading implements the core's (value, timestamp) sample type
// and the sentinel-float JSON encoding required by the object surface
// and the persistent store (NaN/inf/-inf serialize as the strings
// "NaN"/"inf"/"-inf"; all other values as JSON numbers).
package reading

import (
	"encoding/json"
	"fmt"
	"math"
)

// Item is a single (timestamp, value) sample as stored in a collection
// window.
type Item struct {
	TimestampMs int64
	Value       float64
}

// Data is the tuple pushed to report consumers: a metric's reading,
// identified by metric ID and per-sensor metadata.
type Data struct {
	MetricID    string  `json:"id"`
	Metadata    string  `json:"metadata"`
	Value       Float   `json:"value"`
	TimestampMs int64   `json:"timestamp"`
}

// Snapshot is a report's published readings at a point in time.
type Snapshot struct {
	TimestampMs int64  `json:"timestamp"`
	Readings    []Data `json:"readings"`
}

// Float wraps float64 with the sentinel JSON encoding from spec §6.
type Float float64

// MarshalJSON encodes NaN/+Inf/-Inf as the strings "NaN"/"inf"/"-inf"
// and every other value as a normal JSON number.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return json.Marshal("NaN")
	case math.IsInf(v, 1):
		return json.Marshal("inf")
	case math.IsInf(v, -1):
		return json.Marshal("-inf")
	default:
		return json.Marshal(v)
	}
}

// UnmarshalJSON accepts either a sentinel string or a JSON number.
func (f *Float) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "NaN":
			*f = Float(math.NaN())
		case "inf":
			*f = Float(math.Inf(1))
		case "-inf":
			*f = Float(math.Inf(-1))
		default:
			return fmt.Errorf("reading: unrecognized sentinel float %q", s)
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("reading: decode float: %w", err)
	}
	*f = Float(v)
	return nil
}
