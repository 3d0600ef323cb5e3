package logging

import (
	"context"

	"go.uber.org/zap"
)

type viewCtxKey struct{}

// WithViewID attaches a workspace view id to ctx.
func WithViewID(ctx context.Context, viewID string) context.Context {
	return context.WithValue(ctx, viewCtxKey{}, viewID)
}

// ViewIDFromContext returns the view id stored by WithViewID.
func ViewIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(viewCtxKey{}).(string)
	return id
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 1)
	if id := ViewIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("view.id", id))
	}
	return fields
}
