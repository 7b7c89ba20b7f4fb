package service

import "context"

type requestIDKey struct{}

// WithRequestID attaches the id that log lines and run log entries use for
// this analysis.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
