// Package kv holds the domain types shared by the storage layers: the error
// taxonomy, entry metadata, rename options and the KV interface.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Every error returned by the storage layer wraps exactly one
// of the first four sentinels; absence of a key is never an error.
var (
	// ErrConfiguration reports a malformed or unsupported handle configuration.
	ErrConfiguration = errors.New("talsi: configuration error")
	// ErrSerialization reports a value (or key) that cannot be encoded with the
	// serializers the handle is allowed to use.
	ErrSerialization = errors.New("talsi: serialization error")
	// ErrCorruption reports stored data that cannot be trusted.
	ErrCorruption = errors.New("talsi: corruption error")
	// ErrStorage reports an engine failure or unresolved lock contention.
	ErrStorage = errors.New("talsi: storage error")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = fmt.Errorf("%w: storage is closed", ErrStorage)
	// ErrKeyNotFound is returned by rename when a required source key does not exist.
	ErrKeyNotFound = errors.New("talsi: key does not exist")
	// ErrKeyExists is returned by rename when the destination key already exists.
	ErrKeyExists = errors.New("talsi: key already exists")
)

// ErrorClass returns the taxonomy name of err, or "" if err is not classified.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrCorruption):
		return "corruption"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrKeyExists):
		return "rename"
	default:
		return ""
	}
}

// Meta is the store-maintained metadata of an entry.
type Meta struct {
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry is invisible at now.
func (m Meta) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// RenameOptions controls the behaviour of a rename batch.
//
// MustExist decides the batch philosophy: true aborts the whole batch on a
// precondition failure, false skips the offending pair. Overwrite decides
// whether a live destination is replaced; when it is not, the pair is handled
// according to MustExist.
type RenameOptions struct {
	Overwrite bool
	MustExist bool
}

// DefaultRenameOptions returns the defaults: never overwrite, sources must exist.
func DefaultRenameOptions() RenameOptions {
	return RenameOptions{Overwrite: false, MustExist: true}
}

// KV is the namespaced key-value interface implemented by the storage handle.
// Get-style methods report absence through their boolean result.
type KV interface {
	Set(ctx context.Context, namespace, key string, value any) error
	SetTTL(ctx context.Context, namespace, key string, value any, ttl time.Duration) error
	SetMany(ctx context.Context, namespace string, values map[string]any) (int, error)
	Get(ctx context.Context, namespace, key string) (any, bool, error)
	GetInto(ctx context.Context, namespace, key string, dest any) (bool, error)
	GetMany(ctx context.Context, namespace string, keys []string) (map[string]any, error)
	Has(ctx context.Context, namespace, key string) (bool, error)
	HasMany(ctx context.Context, namespace string, keys []string) ([]string, error)
	ListKeys(ctx context.Context, namespace string) ([]string, error)
	ListKeysLike(ctx context.Context, namespace, pattern string) ([]string, error)
	ListNamespaces(ctx context.Context) ([]string, error)
	Rename(ctx context.Context, namespace string, pairs map[string]string, opts RenameOptions) (int, error)
	Delete(ctx context.Context, namespace, key string) (int, error)
	DeleteMany(ctx context.Context, namespace string, keys []string) (int, error)
}
