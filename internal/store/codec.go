package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses raster chunks. Chunks are stored as
// little-endian float32 with zstd applied on top.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec with the given compression level (1 fastest to
// 4 best; anything else uses the default).
func NewCodec(level int) (*Codec, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Encode serializes and compresses a chunk.
func (c *Codec) Encode(values []float32) []byte {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

// Decode decompresses and deserializes a chunk. The expected element count
// guards against truncated or mis-keyed chunks.
func (c *Codec) Decode(data []byte, want int) ([]float32, error) {
	raw, err := c.decoder.DecodeAll(data, make([]byte, 0, 4*want))
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}
	if len(raw) != 4*want {
		return nil, fmt.Errorf("chunk has %d bytes, want %d", len(raw), 4*want)
	}
	values := make([]float32, want)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return values, nil
}
