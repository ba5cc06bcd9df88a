package config

import (
	"os"
	"testing"
)

// Int64Value is exercised unconditionally (no build tag) so a broken
// default type assertion fails a normal test run, unlike main_test.go's
// dev-gated suite.
func TestInt64Value(t *testing.T) {
	os.Unsetenv("TELEMETRYD_MIN_INTERVAL_MS")
	if got := Int64Value("TELEMETRYD_MIN_INTERVAL_MS"); got != 1000 {
		t.Errorf("default: got %d, want 1000", got)
	}

	os.Setenv("TELEMETRYD_MIN_INTERVAL_MS", "2500")
	defer os.Unsetenv("TELEMETRYD_MIN_INTERVAL_MS")
	if got := Int64Value("TELEMETRYD_MIN_INTERVAL_MS"); got != 2500 {
		t.Errorf("override: got %d, want 2500", got)
	}

	os.Setenv("TELEMETRYD_MIN_INTERVAL_MS", "not-a-number")
	if got := Int64Value("TELEMETRYD_MIN_INTERVAL_MS"); got != 1000 {
		t.Errorf("malformed override: got %d, want fallback 1000", got)
	}
}

func TestInt64ValueUnknownKey(t *testing.T) {
	if got := Int64Value("TELEMETRYD_NOT_A_REAL_KEY"); got != 0 {
		t.Errorf("got %d, want 0 for unknown key", got)
	}
}
