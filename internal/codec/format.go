package codec

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/akx/talsi/internal/core/kv"
)

// Format is the one-byte serialization tag stored in a frame.
type Format byte

const (
	FormatUTF8  Format = 'U'
	FormatBytes Format = 'B'
	FormatJSON  Format = 'J'
	FormatGob   Format = 'G'
)

func (f Format) known() bool {
	switch f {
	case FormatUTF8, FormatBytes, FormatJSON, FormatGob:
		return true
	}
	return false
}

func (f Format) String() string {
	switch f {
	case FormatUTF8:
		return "utf8"
	case FormatBytes:
		return "bytes"
	case FormatJSON:
		return "json"
	case FormatGob:
		return "gob"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(f))
	}
}

// maxDepth bounds how deep inspect descends into a value.
const maxDepth = 1000

var errUnrepresentable = errors.New("unrepresentable value")

// inspect reports whether v lies entirely within the JSON interchange subset:
// nil, booleans, numbers, strings, sequences and string-keyed mappings. It
// fails for values neither serializer can carry: channels, functions, unsafe
// pointers and cyclic graphs.
func inspect(v any) (bool, error) {
	w := walker{path: make(map[uintptr]struct{})}
	return w.walk(reflect.ValueOf(v), 0)
}

type walker struct {
	path map[uintptr]struct{}
}

func (w *walker) enter(ptr uintptr) error {
	if _, seen := w.path[ptr]; seen {
		return fmt.Errorf("%w: cyclic value", errUnrepresentable)
	}
	w.path[ptr] = struct{}{}
	return nil
}

func (w *walker) leave(ptr uintptr) {
	delete(w.path, ptr)
}

func (w *walker) walk(v reflect.Value, depth int) (bool, error) {
	if depth > maxDepth {
		return false, fmt.Errorf("%w: value nested deeper than %d levels", errUnrepresentable, maxDepth)
	}
	if !v.IsValid() {
		return true, nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true, nil

	case reflect.Uintptr, reflect.Complex64, reflect.Complex128:
		return false, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return false, fmt.Errorf("%w: %s", errUnrepresentable, v.Type())

	case reflect.Interface:
		if v.IsNil() {
			return true, nil
		}
		return w.walk(v.Elem(), depth+1)

	case reflect.Pointer:
		if v.IsNil() {
			return false, nil
		}
		ptr := v.Pointer()
		if err := w.enter(ptr); err != nil {
			return false, err
		}
		defer w.leave(ptr)
		_, err := w.walk(v.Elem(), depth+1)
		return false, err

	case reflect.Map:
		interchange := v.Type().Key().Kind() == reflect.String
		if v.IsNil() || v.Len() == 0 {
			return interchange, nil
		}
		ptr := v.Pointer()
		if err := w.enter(ptr); err != nil {
			return false, err
		}
		defer w.leave(ptr)
		iter := v.MapRange()
		for iter.Next() {
			ok, err := w.walk(iter.Value(), depth+1)
			if err != nil {
				return false, err
			}
			interchange = interchange && ok
		}
		return interchange, nil

	case reflect.Slice:
		// Byte slices other than plain []byte would be base64-encoded by JSON.
		interchange := v.Type().Elem().Kind() != reflect.Uint8
		if v.Len() == 0 {
			return interchange, nil
		}
		ptr := v.Pointer()
		if err := w.enter(ptr); err != nil {
			return false, err
		}
		defer w.leave(ptr)
		return w.walkElems(v, depth, interchange)

	case reflect.Array:
		return w.walkElems(v, depth, true)

	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			switch f.Type.Kind() {
			case reflect.Chan, reflect.Func:
				// gob skips these fields
				continue
			}
			if _, err := w.walk(v.Field(i), depth+1); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	return false, fmt.Errorf("%w: %s", errUnrepresentable, v.Type())
}

func (w *walker) walkElems(v reflect.Value, depth int, interchange bool) (bool, error) {
	for i := range v.Len() {
		ok, err := w.walk(v.Index(i), depth+1)
		if err != nil {
			return false, err
		}
		interchange = interchange && ok
	}
	return interchange, nil
}

// RegisterType makes the concrete type of v known to the gob serializer.
// Values stored through the gob format must have their exact dynamic type
// registered in every process that writes or reads them.
func RegisterType(v any) {
	gob.Register(v)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	// Encoding through a pointer to an interface keeps the concrete type name
	// in the stream so decoding into `any` restores it.
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		if strings.Contains(err.Error(), "not registered") {
			return nil, fmt.Errorf("%w: %w", kv.ErrSerialization, err)
		}
		return nil, fmt.Errorf("%w: gob decode: %w", kv.ErrCorruption, err)
	}
	return v, nil
}

// assign stores v into the value dest points to.
func assign(dest any, v any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer, got %T", kv.ErrSerialization, dest)
	}
	elem := rv.Elem()

	if v == nil {
		elem.SetZero()
		return nil
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(elem.Type()):
		elem.Set(src)
	case src.Kind() == reflect.Pointer && !src.IsNil() && src.Elem().Type().AssignableTo(elem.Type()):
		elem.Set(src.Elem())
	case src.Kind() == elem.Kind() && src.Type().ConvertibleTo(elem.Type()):
		elem.Set(src.Convert(elem.Type()))
	default:
		return fmt.Errorf("%w: cannot store %T into %s", kv.ErrSerialization, v, elem.Type())
	}
	return nil
}
