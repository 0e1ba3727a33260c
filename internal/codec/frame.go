package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/akx/talsi/internal/core/kv"
)

// FrameVersion is the only frame layout this package writes and reads.
const FrameVersion byte = 1

// headerSize is version, format, algorithm, level and a uint32 payload length.
const headerSize = 8

// Header describes how a frame's payload was produced.
type Header struct {
	Version     byte
	Format      Format
	Compression Compression
	// Length is the size of the (possibly compressed) payload in bytes.
	Length int
}

// MarshalFrame lays out a v1 frame:
//
//	[0] version  [1] format  [2] algorithm  [3] level  [4:8] length (BE)  [8:] payload
func MarshalFrame(format Format, c Compression, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds frame limit", kv.ErrSerialization, len(payload))
	}

	level := 0
	if c.Algorithm == AlgorithmZstd {
		level = c.Level
	}

	out := make([]byte, headerSize+len(payload))
	out[0] = FrameVersion
	out[1] = byte(format)
	out[2] = byte(c.Algorithm)
	out[3] = byte(level)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out, nil
}

// ParseFrame validates a frame and returns its header and payload. Every
// failure wraps kv.ErrCorruption.
func ParseFrame(blob []byte) (Header, []byte, error) {
	if len(blob) < headerSize {
		return Header{}, nil, fmt.Errorf("%w: frame of %d bytes is shorter than its header", kv.ErrCorruption, len(blob))
	}

	h := Header{
		Version: blob[0],
		Format:  Format(blob[1]),
		Compression: Compression{
			Algorithm: Algorithm(blob[2]),
			Level:     int(blob[3]),
		},
		Length: int(binary.BigEndian.Uint32(blob[4:8])),
	}

	if h.Version != FrameVersion {
		return Header{}, nil, fmt.Errorf("%w: unsupported frame version %d", kv.ErrCorruption, h.Version)
	}
	if !h.Format.known() {
		return Header{}, nil, fmt.Errorf("%w: unknown format tag %#x", kv.ErrCorruption, byte(h.Format))
	}

	switch h.Compression.Algorithm {
	case AlgorithmNone, AlgorithmSnappy:
		if h.Compression.Level != 0 {
			return Header{}, nil, fmt.Errorf("%w: level %d recorded for %s", kv.ErrCorruption, h.Compression.Level, h.Compression)
		}
	case AlgorithmZstd:
		if h.Compression.Level < MinZstdLevel || h.Compression.Level > MaxZstdLevel {
			return Header{}, nil, fmt.Errorf("%w: zstd level %d out of range", kv.ErrCorruption, h.Compression.Level)
		}
	default:
		return Header{}, nil, fmt.Errorf("%w: unknown compression tag %#x", kv.ErrCorruption, byte(h.Compression.Algorithm))
	}

	payload := blob[headerSize:]
	if len(payload) != h.Length {
		return Header{}, nil, fmt.Errorf("%w: frame declares %d payload bytes, found %d", kv.ErrCorruption, h.Length, len(payload))
	}

	return h, payload, nil
}
