package obslog

import (
	"context"
	"testing"

	"github.com/thisdougb/telemetryd/internal/config"
)

func TestLoggingDoesNotPanic(t *testing.T) {
	ctx := config.SetContextCorrelationId(context.Background(), "test")

	Info(ctx, "hello")
	Warn(ctx, "careful")
	Error(ctx, "boom")
	Debug(ctx, "quiet unless debug enabled")

	if err := Sync(); err != nil {
		// zap's Sync can fail on stdout in test sandboxes (ENOTTY); not a bug.
		t.Logf("sync returned %v", err)
	}
}
