package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/akx/talsi/internal/core/kv"
	memo "github.com/akx/talsi/pkg/kv"
)

// Algorithm is the one-byte compression tag stored in a frame.
type Algorithm byte

const (
	AlgorithmNone   Algorithm = 'n'
	AlgorithmSnappy Algorithm = 's'
	AlgorithmZstd   Algorithm = 'z'
)

const (
	DefaultZstdLevel = 3
	MinZstdLevel     = 1
	MaxZstdLevel     = 22

	// MinCompressSize is the payload size below which data is stored
	// uncompressed (and tagged as such).
	MinCompressSize = 1024
)

// Compression is an algorithm plus its level. Level is only meaningful for zstd.
type Compression struct {
	Algorithm Algorithm
	Level     int
}

var (
	None   = Compression{Algorithm: AlgorithmNone}
	Snappy = Compression{Algorithm: AlgorithmSnappy}
)

// Zstd returns a zstd compression setting at the given level.
func Zstd(level int) Compression {
	return Compression{Algorithm: AlgorithmZstd, Level: level}
}

// ParseCompression parses "none", "snappy", "zstd" or "zstd:<level>".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd(DefaultZstdLevel), nil
	}

	levelStr, ok := strings.CutPrefix(s, "zstd:")
	if !ok {
		return Compression{}, fmt.Errorf("%w: unknown compression algorithm %q, use 'none', 'snappy', 'zstd' or 'zstd:LEVEL'", kv.ErrConfiguration, s)
	}

	level, err := strconv.Atoi(levelStr)
	if err != nil {
		return Compression{}, fmt.Errorf("%w: invalid zstd compression level %q", kv.ErrConfiguration, levelStr)
	}
	if level < MinZstdLevel || level > MaxZstdLevel {
		return Compression{}, fmt.Errorf("%w: zstd compression level must be between %d and %d, got %d", kv.ErrConfiguration, MinZstdLevel, MaxZstdLevel, level)
	}

	return Zstd(level), nil
}

// String renders the setting in the syntax accepted by ParseCompression.
func (c Compression) String() string {
	switch c.Algorithm {
	case AlgorithmNone:
		return "none"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return fmt.Sprintf("zstd:%d", c.Level)
	default:
		return fmt.Sprintf("unknown(%#x)", byte(c.Algorithm))
	}
}

func (c Compression) validate() error {
	switch c.Algorithm {
	case AlgorithmNone, AlgorithmSnappy:
		return nil
	case AlgorithmZstd:
		if c.Level < MinZstdLevel || c.Level > MaxZstdLevel {
			return fmt.Errorf("%w: zstd compression level must be between %d and %d, got %d", kv.ErrConfiguration, MinZstdLevel, MaxZstdLevel, c.Level)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown compression algorithm tag %#x", kv.ErrConfiguration, byte(c.Algorithm))
	}
}

var (
	zstdEncoders = memo.New[int, *zstd.Encoder]()
	zstdDecoder  *zstd.Decoder
)

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("codec: create zstd decoder: %v", err))
	}
}

func zstdEncoder(level int) (*zstd.Encoder, error) {
	return zstdEncoders.GetOrCreate(level, func(level int) (*zstd.Encoder, error) {
		return zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1),
		)
	})
}

// compress applies c to data. Payloads below MinCompressSize are returned
// unchanged together with the None setting, so the frame stays honest.
func compress(c Compression, data []byte) (Compression, []byte, error) {
	if c.Algorithm == AlgorithmNone || len(data) < MinCompressSize {
		return None, data, nil
	}

	switch c.Algorithm {
	case AlgorithmSnappy:
		return c, snappy.Encode(nil, data), nil
	case AlgorithmZstd:
		enc, err := zstdEncoder(c.Level)
		if err != nil {
			return Compression{}, nil, fmt.Errorf("%w: create zstd encoder: %w", kv.ErrConfiguration, err)
		}
		return c, enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return Compression{}, nil, c.validate()
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c.Algorithm {
	case AlgorithmNone:
		return data, nil
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy decode: %w", kv.ErrCorruption, err)
		}
		return out, nil
	case AlgorithmZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decode: %w", kv.ErrCorruption, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %#x", kv.ErrCorruption, byte(c.Algorithm))
	}
}
