package codec

import (
	"bytes"
	stdjson "encoding/json"
	"os"
	"strconv"
	"sync"

	gojson "github.com/goccy/go-json"
)

// JSONBackendEnv selects the JSON implementation at process start. The only
// recognised value is "std"; anything else keeps the default fast backend.
const JSONBackendEnv = "TALSI_JSON_BACKEND"

// JSONBackend is a JSON implementation. Every backend must produce and accept
// standard JSON so frames stay readable whichever backend wrote them.
type JSONBackend interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// DecodeValue decodes into a generic value, keeping integral numbers exact.
	DecodeValue(data []byte) (any, error)
	Name() string
}

var (
	backendOnce sync.Once
	backend     JSONBackend
)

// DefaultJSONBackend returns the backend chosen for this process.
func DefaultJSONBackend() JSONBackend {
	backendOnce.Do(func() {
		backend = selectJSONBackend(os.Getenv(JSONBackendEnv))
	})
	return backend
}

func selectJSONBackend(name string) JSONBackend {
	if name == "std" {
		return stdBackend{}
	}
	return goccyBackend{}
}

type goccyBackend struct{}

func (goccyBackend) Name() string                        { return "goccy" }
func (goccyBackend) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (goccyBackend) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

func (goccyBackend) DecodeValue(data []byte) (any, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

// stdBackend is the reference implementation the fast backend must agree with.
type stdBackend struct{}

func (stdBackend) Name() string                        { return "std" }
func (stdBackend) Marshal(v any) ([]byte, error)      { return stdjson.Marshal(v) }
func (stdBackend) Unmarshal(data []byte, v any) error { return stdjson.Unmarshal(data, v) }

func (stdBackend) DecodeValue(data []byte) (any, error) {
	dec := stdjson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

// number matches json.Number from either backend.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// normalizeNumbers turns decoded numbers into int64 when integral, uint64 when
// integral and above the int64 range, and float64 otherwise.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, elem := range x {
			x[k] = normalizeNumbers(elem)
		}
		return x
	case []any:
		for i, elem := range x {
			x[i] = normalizeNumbers(elem)
		}
		return x
	case number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return u
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		return v
	}
}
