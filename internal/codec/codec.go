// Package codec turns values into self-describing frames and back.
//
// A value is serialized according to its shape (UTF-8 string, raw bytes, JSON
// for the interchange subset, gob for everything else when trusted), then
// compressed with the configured algorithm. The frame records both choices, so
// decoding never depends on the configuration of the codec doing the reading.
package codec

import (
	"fmt"
	"reflect"

	"github.com/akx/talsi/internal/core/kv"
)

// Options configures a Codec.
type Options struct {
	Compression Compression
	// AllowGob enables the general-object serializer for both writing and
	// reading. It cannot be changed after construction.
	AllowGob bool
	// JSON overrides the process-wide backend. Nil uses DefaultJSONBackend.
	JSON JSONBackend
}

// Codec is stateless apart from its configuration and safe for concurrent use.
type Codec struct {
	compression Compression
	allowGob    bool
	json        JSONBackend
}

// New validates opts and returns a Codec.
func New(opts Options) (*Codec, error) {
	if err := opts.Compression.validate(); err != nil {
		return nil, err
	}
	if opts.JSON == nil {
		opts.JSON = DefaultJSONBackend()
	}
	return &Codec{
		compression: opts.Compression,
		allowGob:    opts.AllowGob,
		json:        opts.JSON,
	}, nil
}

// Compression returns the default compression applied to new frames.
func (c *Codec) Compression() Compression {
	return c.compression
}

// AllowGob reports whether the gob serializer is enabled.
func (c *Codec) AllowGob() bool {
	return c.allowGob
}

// Encode serializes and compresses v into a frame.
func (c *Codec) Encode(v any) ([]byte, error) {
	format, data, err := c.serialize(v)
	if err != nil {
		return nil, err
	}

	comp, payload, err := compress(c.compression, data)
	if err != nil {
		return nil, err
	}

	return MarshalFrame(format, comp, payload)
}

func (c *Codec) serialize(v any) (Format, []byte, error) {
	switch x := v.(type) {
	case string:
		return FormatUTF8, []byte(x), nil
	case []byte:
		return FormatBytes, x, nil
	}

	interchange, err := inspect(v)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", kv.ErrSerialization, err)
	}

	if interchange {
		data, err := c.json.Marshal(v)
		if err == nil {
			return FormatJSON, data, nil
		}
		if !c.allowGob {
			return 0, nil, fmt.Errorf("%w: json encode %T: %w", kv.ErrSerialization, v, err)
		}
	} else if !c.allowGob {
		return 0, nil, fmt.Errorf("%w: value of type %T needs the gob serializer, which is not enabled", kv.ErrSerialization, v)
	}

	data, err := gobEncode(v)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: gob encode %T: %w", kv.ErrSerialization, v, err)
	}
	return FormatGob, data, nil
}

// Inspect validates a frame and returns its header without decoding it.
func Inspect(blob []byte) (Header, error) {
	h, _, err := ParseFrame(blob)
	return h, err
}

// Decode turns a frame back into a value. JSON values come back as nil, bool,
// int64, float64, string, []any or map[string]any.
func (c *Codec) Decode(blob []byte) (any, error) {
	format, data, err := c.open(blob)
	if err != nil {
		return nil, err
	}
	return c.decode(format, data)
}

func (c *Codec) decode(format Format, data []byte) (any, error) {
	switch format {
	case FormatUTF8:
		return string(data), nil
	case FormatBytes:
		return data, nil
	case FormatJSON:
		v, err := c.json.DecodeValue(data)
		if err != nil {
			return nil, fmt.Errorf("%w: json decode: %w", kv.ErrCorruption, err)
		}
		return v, nil
	default:
		return gobDecode(data)
	}
}

// DecodeInto decodes a frame into the value dest points to. JSON frames are
// unmarshalled directly, so dest may be any type the JSON maps onto.
func (c *Codec) DecodeInto(blob []byte, dest any) error {
	if rv := reflect.ValueOf(dest); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer, got %T", kv.ErrSerialization, dest)
	}

	format, data, err := c.open(blob)
	if err != nil {
		return err
	}

	if format == FormatJSON && !isAnyPointer(dest) {
		if err := c.json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("%w: json decode into %T: %w", kv.ErrSerialization, dest, err)
		}
		return nil
	}

	v, err := c.decode(format, data)
	if err != nil {
		return err
	}
	return assign(dest, v)
}

// open parses the frame, enforces the trust flag and decompresses the payload.
func (c *Codec) open(blob []byte) (Format, []byte, error) {
	h, payload, err := ParseFrame(blob)
	if err != nil {
		return 0, nil, err
	}
	if h.Format == FormatGob && !c.allowGob {
		return 0, nil, fmt.Errorf("%w: value is gob-encoded and the gob serializer is not enabled", kv.ErrSerialization)
	}

	data, err := decompress(h.Compression, payload)
	if err != nil {
		return 0, nil, err
	}
	return h.Format, data, nil
}

func isAnyPointer(dest any) bool {
	_, ok := dest.(*any)
	return ok
}
