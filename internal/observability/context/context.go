package context

import "context"

type requestIDKey struct{}

type eventKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithEvent tags the context with the provider event being processed so log
// lines emitted deep inside handlers carry it.
func WithEvent(ctx context.Context, eventType, eventID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, eventKey{}, [2]string{eventType, eventID})
}

func EventFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, _ := ctx.Value(eventKey{}).([2]string)
	return value[0], value[1]
}
