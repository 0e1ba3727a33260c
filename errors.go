package talsi

import (
	"fmt"

	"github.com/akx/talsi/internal/codec"
	"github.com/akx/talsi/internal/core/kv"
	"github.com/akx/talsi/internal/data/db"
)

// Error taxonomy. Every failure wraps one of the first four; test with
// errors.Is. A missing or expired key is never an error.
var (
	ErrConfiguration = kv.ErrConfiguration
	ErrSerialization = kv.ErrSerialization
	ErrCorruption    = kv.ErrCorruption
	ErrStorage       = kv.ErrStorage

	// ErrClosed is returned after Close. It also matches ErrStorage.
	ErrClosed = kv.ErrClosed
	// ErrKeyNotFound aborts a rename whose source is missing when MustExist is set.
	ErrKeyNotFound = kv.ErrKeyNotFound
	// ErrKeyExists aborts a rename whose destination is live when neither
	// Overwrite nor skipping is allowed.
	ErrKeyExists = kv.ErrKeyExists
)

// RenameOptions controls Rename; see kv.RenameOptions.
type RenameOptions = kv.RenameOptions

// DefaultRenameOptions never overwrites and requires every source to exist.
func DefaultRenameOptions() RenameOptions {
	return kv.DefaultRenameOptions()
}

// Meta is the store-maintained metadata of an entry.
type Meta = kv.Meta

// TypedKV is a namespace-bound view for values of one type.
type TypedKV[T any] = kv.TypedKV[T]

// Scoped returns a TypedKV bound to namespace.
func Scoped[T any](s *Storage, namespace string) *TypedKV[T] {
	return kv.Scoped[T](s, namespace)
}

// RegisterType registers the concrete type of v with the gob serializer.
// Handles opened with AllowGob can only store and load registered types
// (plus the types gob knows natively), and the registration must happen in
// every process that reads the data.
func RegisterType(v any) {
	codec.RegisterType(v)
}

// RecoverFromCorruption moves the database file at path aside, together with
// its -wal and -shm files, and returns where the main file went. The next
// Open starts from an empty database. No handle may be open on the file.
func RecoverFromCorruption(path string) (string, error) {
	backup, err := db.RecoverFromCorruption(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return backup, nil
}
