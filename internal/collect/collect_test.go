package collect

import (
	"math"
	"testing"

	"github.com/thisdougb/telemetryd/internal/reading"
)

func items(pairs ...int64) []reading.Item {
	out := make([]reading.Item, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, reading.Item{TimestampMs: pairs[i], Value: float64(pairs[i+1])})
	}
	return out
}

func TestSingleCalculate(t *testing.T) {
	fn := New(Single)
	got := fn.Calculate(items(0, 1, 1000, 2, 2000, 3), 2500)
	if got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
}

func TestMinMaxPreferFinite(t *testing.T) {
	rs := []reading.Item{
		{TimestampMs: 0, Value: math.NaN()},
		{TimestampMs: 100, Value: 5},
		{TimestampMs: 200, Value: 1},
		{TimestampMs: 300, Value: math.Inf(1)},
	}
	if got := New(Min).Calculate(rs, 400); got != 1 {
		t.Fatalf("min got %v, want 1", got)
	}
	if got := New(Max).Calculate(rs, 400); got != 5 {
		t.Fatalf("max got %v, want 5", got)
	}
}

func TestMinAllNonFiniteFallsBackToFirst(t *testing.T) {
	rs := []reading.Item{
		{TimestampMs: 0, Value: math.Inf(1)},
		{TimestampMs: 100, Value: math.Inf(-1)},
	}
	got := New(Min).Calculate(rs, 200)
	if !math.IsInf(got, 1) {
		t.Fatalf("got %v, want +Inf (first sample)", got)
	}
}

func TestAverageTimeWeighted(t *testing.T) {
	// value 10 held for 1000ms, then value 20 held for 1000ms to now.
	rs := items(0, 10, 1000, 20)
	got := New(Average).Calculate(rs, 2000)
	want := (10.0*1000 + 20.0*1000) / 2000
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAverageSkipsNonFiniteSegments(t *testing.T) {
	rs := []reading.Item{
		{TimestampMs: 0, Value: math.NaN()},
		{TimestampMs: 1000, Value: 10},
	}
	got := New(Average).Calculate(rs, 2000)
	if got != 10 {
		t.Fatalf("got %v, want 10 (NaN segment excluded)", got)
	}
}

func TestSummationAccumulates(t *testing.T) {
	// 2 units held for 1000ms (1s), then 3 units held for 1000ms (1s) to now.
	rs := items(0, 2, 1000, 3)
	got := New(Summation).Calculate(rs, 2000)
	want := 2.0*1 + 3.0*1
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPointWindowKeepsOnlyLatest(t *testing.T) {
	w := NewPointWindow(New(Single))
	w.Add(reading.Item{TimestampMs: 0, Value: 1})
	w.Add(reading.Item{TimestampMs: 100, Value: 2})
	if got := w.Calculate(200); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
	if len(w.readings) != 1 {
		t.Fatalf("point window retained %d samples, want 1", len(w.readings))
	}
}

func TestNewIntervalWindowRejectsZero(t *testing.T) {
	if _, err := NewIntervalWindow(New(Average), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestIntervalWindowTrimsExpiredHead(t *testing.T) {
	w, err := NewIntervalWindow(New(Average), 1000)
	if err != nil {
		t.Fatal(err)
	}
	w.Add(reading.Item{TimestampMs: 0, Value: 1})
	w.Add(reading.Item{TimestampMs: 500, Value: 2})
	w.Add(reading.Item{TimestampMs: 1500, Value: 3})

	w.Calculate(2000)
	if len(w.readings) != 2 {
		t.Fatalf("retained %d samples after trim, want 2", len(w.readings))
	}
	if w.readings[0].TimestampMs != 1000 {
		t.Fatalf("trimmed head timestamp %d, want clamped to 1000", w.readings[0].TimestampMs)
	}
}

func TestStartupWindowCompactsOnQuery(t *testing.T) {
	w := NewStartupWindow(New(Average))
	w.Add(reading.Item{TimestampMs: 0, Value: 10})
	w.Add(reading.Item{TimestampMs: 1000, Value: 20})
	w.Calculate(2000)
	if len(w.readings) != 2 {
		t.Fatalf("startup window retained %d samples after compaction, want 2", len(w.readings))
	}
}

func TestUpdateLastValueReportsChange(t *testing.T) {
	w := NewPointWindow(New(Single))
	if !w.UpdateLastValue(1) {
		t.Fatal("expected change on first value")
	}
	if w.UpdateLastValue(1) {
		t.Fatal("expected no change on repeated value")
	}
	if !w.UpdateLastValue(2) {
		t.Fatal("expected change on new value")
	}
}
