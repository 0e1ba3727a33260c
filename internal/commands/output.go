package commands

import (
	"fmt"
	"io"
	"os"
	"reflect"

	"golang.org/x/term"

	"github.com/akx/talsi/pkg/iojson"
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// writeValue prints a stored value. Maps, slices and arrays are printed as
// indented JSON. Byte values are written raw, or quoted when w is a terminal.
// Everything else is printed with its default format.
func writeValue(w, ew io.Writer, v any) error {
	if b, ok := v.([]byte); ok {
		if isTerminal(w) {
			_, err := fmt.Fprintf(w, "%q\n", b)
			return err
		}
		_, err := w.Write(b)
		return err
	}

	if v == nil {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return iojson.WriteWith(w, ew, v)
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}
