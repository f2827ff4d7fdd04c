// Package docchunk defines the stored document chunk consumed by retrieval
// features: an id, the chunk text and its embedding vector.
package docchunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Dim is the embedding width of the bundled sentence encoder.
const Dim = 384

var (
	ErrDim  = errors.New("docchunk: embedding dimension mismatch")
	ErrBlob = errors.New("docchunk: embedding blob is not a whole number of float32 values")
)

type DocChunk struct {
	ID        uint64    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Equal compares all fields. Embeddings compare by their stored bits, so
// two chunks are equal exactly when their encoded forms are.
func (c DocChunk) Equal(o DocChunk) bool {
	if c.ID != o.ID || c.Text != o.Text || len(c.Embedding) != len(o.Embedding) {
		return false
	}
	for i, v := range c.Embedding {
		if math.Float32bits(v) != math.Float32bits(o.Embedding[i]) {
			return false
		}
	}
	return true
}

// Validate checks the embedding width.
func (c DocChunk) Validate() error {
	if len(c.Embedding) != Dim {
		return fmt.Errorf("chunk %d: %w: got %d want %d", c.ID, ErrDim, len(c.Embedding), Dim)
	}
	return nil
}

// EncodeEmbedding packs v as little-endian float32 values.
func EncodeEmbedding(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlob, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// MarshalBinary encodes the embedding blob as stored alongside id and text.
func (c DocChunk) MarshalBinary() ([]byte, error) {
	return EncodeEmbedding(c.Embedding), nil
}

// UnmarshalBinary replaces the embedding with the decoded blob.
func (c *DocChunk) UnmarshalBinary(raw []byte) error {
	v, err := DecodeEmbedding(raw)
	if err != nil {
		return err
	}
	c.Embedding = v
	return nil
}
