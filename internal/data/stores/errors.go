package stores

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/akx/talsi/internal/core/kv"
	"github.com/akx/talsi/internal/data/db"
)

// IsNotFoundError returns true if the error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Classify wraps an engine error into the error taxonomy. Errors that already
// carry a taxonomy sentinel, or a rename precondition, pass through.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrConfiguration),
		errors.Is(err, kv.ErrSerialization),
		errors.Is(err, kv.ErrCorruption),
		errors.Is(err, kv.ErrStorage),
		errors.Is(err, kv.ErrKeyNotFound),
		errors.Is(err, kv.ErrKeyExists):
		return err
	case db.IsCorruptionError(err):
		return fmt.Errorf("%w: %w", kv.ErrCorruption, err)
	default:
		return fmt.Errorf("%w: %w", kv.ErrStorage, err)
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, Classify(err))
}
