package logger

import "context"

type contextKey string

const RunIDKey contextKey = "run_id"
const PlanIDKey contextKey = "plan_id"

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

func WithPlanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PlanIDKey, id)
}

func GetPlanID(ctx context.Context) string {
	if id, ok := ctx.Value(PlanIDKey).(string); ok {
		return id
	}
	return ""
}

// Attrs returns the run and plan ids carried by ctx as slog key/value pairs.
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := GetPlanID(ctx); id != "" {
		attrs = append(attrs, "plan_id", id)
	}
	if id := GetRunID(ctx); id != "" {
		attrs = append(attrs, "run_id", id)
	}
	return attrs
}
