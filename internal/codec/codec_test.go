package codec

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akx/talsi/internal/core/kv"
)

type Point struct {
	X, Y int
	Tags map[int]string
}

func init() {
	RegisterType(Point{})
}

func newCodec(t *testing.T, c Compression, allowGob bool) *Codec {
	t.Helper()
	cdc, err := New(Options{Compression: c, AllowGob: allowGob})
	require.NoError(t, err)
	return cdc
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr string
	}{
		{in: "none", want: None},
		{in: "snappy", want: Snappy},
		{in: "zstd", want: Zstd(3)},
		{in: "zstd:1", want: Zstd(1)},
		{in: "zstd:22", want: Zstd(22)},
		{in: "zstd:0", wantErr: "must be between 1 and 22"},
		{in: "zstd:23", wantErr: "must be between 1 and 22"},
		{in: "zstd:abc", wantErr: "invalid zstd compression level"},
		{in: "lz4", wantErr: "unknown compression algorithm"},
		{in: "", wantErr: "unknown compression algorithm"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompression(tt.in)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, kv.ErrConfiguration)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompression_StringRoundTrip(t *testing.T) {
	for _, c := range []Compression{None, Snappy, Zstd(1), Zstd(10)} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	long := strings.Repeat("talsi ", 1000)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "string", value: "hello", want: "hello"},
		{name: "empty string", value: "", want: ""},
		{name: "bytes", value: []byte{0x89, 'P', 'N', 'G'}, want: []byte{0x89, 'P', 'N', 'G'}},
		{name: "long string", value: long, want: long},
		{name: "nil", value: nil, want: nil},
		{name: "bool", value: true, want: true},
		{name: "int", value: 42, want: int64(42)},
		{name: "big int", value: int64(1) << 60, want: int64(1) << 60},
		{name: "max uint64", value: uint64(math.MaxUint64), want: uint64(math.MaxUint64)},
		{name: "uint64 in int64 range", value: uint64(7), want: int64(7)},
		{name: "min int64", value: int64(math.MinInt64), want: int64(math.MinInt64)},
		{name: "float", value: 1.5, want: 1.5},
		{name: "slice", value: []any{"a", 1, false}, want: []any{"a", int64(1), false}},
		{
			name:  "uint64 in map",
			value: map[string]any{"n": uint64(math.MaxUint64)},
			want:  map[string]any{"n": uint64(math.MaxUint64)},
		},
		{name: "typed slice", value: []string{"x", "y"}, want: []any{"x", "y"}},
		{
			name:  "nested map",
			value: map[string]any{"nested": []int{1, 2, 3}, "key": "value"},
			want:  map[string]any{"nested": []any{int64(1), int64(2), int64(3)}, "key": "value"},
		},
	}

	for _, comp := range []Compression{None, Snappy, Zstd(3), Zstd(19)} {
		cdc := newCodec(t, comp, false)
		for _, tt := range tests {
			t.Run(comp.String()+"/"+tt.name, func(t *testing.T) {
				blob, err := cdc.Encode(tt.value)
				require.NoError(t, err)

				got, err := cdc.Decode(blob)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestCodec_FrameRecordsCodec(t *testing.T) {
	large := strings.Repeat("x", 10000)

	t.Run("large value is compressed", func(t *testing.T) {
		blob, err := newCodec(t, Zstd(5), false).Encode(large)
		require.NoError(t, err)

		h, err := Inspect(blob)
		require.NoError(t, err)
		assert.Equal(t, FrameVersion, h.Version)
		assert.Equal(t, FormatUTF8, h.Format)
		assert.Equal(t, Zstd(5), h.Compression)
		assert.Less(t, h.Length, len(large))
	})

	t.Run("small value is stored as none", func(t *testing.T) {
		blob, err := newCodec(t, Zstd(5), false).Encode(map[string]any{"a": 1})
		require.NoError(t, err)

		h, err := Inspect(blob)
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, h.Format)
		assert.Equal(t, None, h.Compression)
	})
}

func TestCodec_ForwardCompatible(t *testing.T) {
	large := map[string]any{"payload": strings.Repeat("abc", 5000)}

	blob, err := newCodec(t, Zstd(5), false).Encode(large)
	require.NoError(t, err)

	// A reader configured for a different default still decodes the frame.
	got, err := newCodec(t, Snappy, false).Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, large, got)

	blob, err = newCodec(t, Snappy, false).Encode(large)
	require.NoError(t, err)
	got, err = newCodec(t, None, false).Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, large, got)
}

func TestCodec_GobRequiresTrust(t *testing.T) {
	value := Point{X: 1, Y: 2, Tags: map[int]string{7: "seven"}}

	_, err := newCodec(t, Snappy, false).Encode(value)
	require.ErrorIs(t, err, kv.ErrSerialization)

	trusted := newCodec(t, Snappy, true)
	blob, err := trusted.Encode(value)
	require.NoError(t, err)

	h, err := Inspect(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatGob, h.Format)

	got, err := trusted.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	// Reading a gob frame without trust is refused, not silently downgraded.
	_, err = newCodec(t, Snappy, false).Decode(blob)
	require.ErrorIs(t, err, kv.ErrSerialization)
}

func TestCodec_InterchangeStaysJSONWhenTrusted(t *testing.T) {
	blob, err := newCodec(t, Snappy, true).Encode(map[string]any{"a": []any{1, "b"}})
	require.NoError(t, err)

	h, err := Inspect(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, h.Format)
}

func TestCodec_NaNFallsBackToGob(t *testing.T) {
	_, err := newCodec(t, None, false).Encode(math.NaN())
	require.ErrorIs(t, err, kv.ErrSerialization)

	cdc := newCodec(t, None, true)
	blob, err := cdc.Encode(math.NaN())
	require.NoError(t, err)

	got, err := cdc.Decode(blob)
	require.NoError(t, err)
	f, ok := got.(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
}

func TestCodec_Unrepresentable(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	type node struct {
		Next *node
	}
	loop := &node{}
	loop.Next = loop

	tests := []struct {
		name  string
		value any
	}{
		{name: "channel", value: make(chan int)},
		{name: "func", value: func() {}},
		{name: "channel in map", value: map[string]any{"c": make(chan int)}},
		{name: "cyclic map", value: cyclic},
		{name: "cyclic pointer", value: loop},
	}

	cdc := newCodec(t, Snappy, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cdc.Encode(tt.value)
			require.ErrorIs(t, err, kv.ErrSerialization)
		})
	}
}

func TestCodec_DecodeInto(t *testing.T) {
	cdc := newCodec(t, Snappy, true)

	t.Run("json into struct", func(t *testing.T) {
		blob, err := cdc.Encode(map[string]any{"host": "localhost", "port": 8080})
		require.NoError(t, err)

		var cfg struct {
			Host string `json:"host"`
			Port int    `json:"port"`
		}
		require.NoError(t, cdc.DecodeInto(blob, &cfg))
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 8080, cfg.Port)
	})

	t.Run("json into any keeps integers", func(t *testing.T) {
		blob, err := cdc.Encode([]any{1, 2.5})
		require.NoError(t, err)

		var v any
		require.NoError(t, cdc.DecodeInto(blob, &v))
		assert.Equal(t, []any{int64(1), 2.5}, v)
	})

	t.Run("utf8 into string", func(t *testing.T) {
		blob, err := cdc.Encode("dark")
		require.NoError(t, err)

		var s string
		require.NoError(t, cdc.DecodeInto(blob, &s))
		assert.Equal(t, "dark", s)
	})

	t.Run("bytes into slice", func(t *testing.T) {
		blob, err := cdc.Encode([]byte("raw"))
		require.NoError(t, err)

		var b []byte
		require.NoError(t, cdc.DecodeInto(blob, &b))
		assert.Equal(t, []byte("raw"), b)
	})

	t.Run("gob into struct", func(t *testing.T) {
		blob, err := cdc.Encode(Point{X: 3})
		require.NoError(t, err)

		var p Point
		require.NoError(t, cdc.DecodeInto(blob, &p))
		assert.Equal(t, 3, p.X)
	})

	t.Run("type mismatch", func(t *testing.T) {
		blob, err := cdc.Encode("text")
		require.NoError(t, err)

		var n int
		require.ErrorIs(t, cdc.DecodeInto(blob, &n), kv.ErrSerialization)
	})

	t.Run("non-pointer destination", func(t *testing.T) {
		blob, err := cdc.Encode("text")
		require.NoError(t, err)

		var s string
		require.ErrorIs(t, cdc.DecodeInto(blob, s), kv.ErrSerialization)
	})
}

func TestNew_RejectsInvalidCompression(t *testing.T) {
	_, err := New(Options{Compression: Zstd(40)})
	require.ErrorIs(t, err, kv.ErrConfiguration)

	_, err = New(Options{Compression: Compression{Algorithm: 'q'}})
	require.ErrorIs(t, err, kv.ErrConfiguration)
}
