package kv

import (
	"context"
	"time"
)

// TypedKV provides type-safe access to a single namespace for values of type T.
type TypedKV[T any] struct {
	store     KV
	namespace string
}

// Scoped returns a TypedKV[T] bound to namespace.
func Scoped[T any](store KV, namespace string) *TypedKV[T] {
	return &TypedKV[T]{
		store:     store,
		namespace: namespace,
	}
}

// Namespace returns the namespace the view is bound to.
func (t *TypedKV[T]) Namespace() string {
	return t.namespace
}

// Get retrieves and decodes a value by key. The boolean is false when the key
// is absent or expired.
func (t *TypedKV[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var v T
	ok, err := t.store.GetInto(ctx, t.namespace, key, &v)
	if err != nil || !ok {
		var zero T
		return zero, ok, err
	}
	return v, true, nil
}

// Set stores a value with no expiry.
func (t *TypedKV[T]) Set(ctx context.Context, key string, value T) error {
	return t.store.Set(ctx, t.namespace, key, value)
}

// SetTTL stores a value that expires after the given duration.
func (t *TypedKV[T]) SetTTL(ctx context.Context, key string, value T, ttl time.Duration) error {
	return t.store.SetTTL(ctx, t.namespace, key, value, ttl)
}

// Delete removes a key and reports whether a live entry was removed.
func (t *TypedKV[T]) Delete(ctx context.Context, key string) (bool, error) {
	n, err := t.store.Delete(ctx, t.namespace, key)
	return n > 0, err
}

// Has returns whether a key exists and is not expired.
func (t *TypedKV[T]) Has(ctx context.Context, key string) (bool, error) {
	return t.store.Has(ctx, t.namespace, key)
}

// Keys lists the live keys of the namespace in sorted order.
func (t *TypedKV[T]) Keys(ctx context.Context) ([]string, error) {
	return t.store.ListKeys(ctx, t.namespace)
}
