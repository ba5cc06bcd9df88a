package config

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	CorrelationContextKey string
	DebugContextKey       string
	TimeCreatedContextKey string
)

// SetContextCorrelationId stamps ctx with a correlation ID suffixed by
// value (e.g. a report or trigger ID), a debug flag read from
// TELEMETRYD_DEBUG, and — the first time this is called on a context
// lineage — a creation timestamp used for elapsed-time logging.
func SetContextCorrelationId(ctx context.Context, value string) context.Context {

	id := uuid.NewString()[:8]

	newctx := context.WithValue(ctx, CorrelationContextKey("cid"), id+"-"+value)

	// if the created time is unset then set it. test for -1 as 0 could be
	// a symptom of a default unset value
	t := GetContextTimeCreated(ctx)
	if t == -1 {
		newctx = context.WithValue(
			newctx,
			TimeCreatedContextKey("timeCreated"),
			time.Now().Unix())
	}

	newctx = context.WithValue(newctx, DebugContextKey("debug"), BoolValue("TELEMETRYD_DEBUG"))

	return newctx
}

func GetContextTimeCreated(ctx context.Context) int64 {

	key := TimeCreatedContextKey("timeCreated")

	if v := ctx.Value(key); v != nil {
		return v.(int64)
	}
	return -1
}

func AppendToContextCorrelationId(ctx context.Context, value string) context.Context {
	key := CorrelationContextKey("cid")
	id := GetContextCorrelationId(ctx)
	newctx := context.WithValue(ctx, key, id+"-"+value)
	return newctx
}

func GetContextCorrelationId(ctx context.Context) string {

	key := CorrelationContextKey("cid")

	if v := ctx.Value(key); v != nil {
		return v.(string)
	}

	return "no-id"
}

func GetContextDebug(ctx context.Context) bool {

	key := DebugContextKey("debug")

	if v := ctx.Value(key); v != nil {
		return v.(bool)
	}

	return false
}
