package logging

import "context"

type contextKey string

const (
	namespaceKey contextKey = "namespace"
	operationKey contextKey = "op"
)

// WithNamespace adds a namespace to the context.
func WithNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceKey, namespace)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// GetNamespace retrieves the namespace from the context.
// The second result is false if none was set; the empty namespace is valid.
func GetNamespace(ctx context.Context) (string, bool) {
	ns, ok := ctx.Value(namespaceKey).(string)
	return ns, ok
}

// GetOperation retrieves the operation name from the context.
// Returns empty string if not present.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}
