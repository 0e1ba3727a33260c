// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"unicode/utf8"

	"github.com/akx/talsi/internal/core/kv"
)

// Name checks that a namespace or key is valid UTF-8. kind names the value in
// the error. Any valid string is accepted, including the empty string.
func Name(kind, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s %q is not valid UTF-8", kv.ErrSerialization, kind, s)
	}
	return nil
}

// Names checks a namespace and keys with Name.
func Names(namespace string, keys ...string) error {
	if err := Name("namespace", namespace); err != nil {
		return err
	}
	for _, k := range keys {
		if err := Name("key", k); err != nil {
			return err
		}
	}
	return nil
}
