package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm selects the compression used by Compressed.
type Algorithm string

const (
	Zstd Algorithm = "zstd"
	LZ4  Algorithm = "lz4"
)

// Compressed wraps another codec and compresses its output. Static assets
// (HTML, CSS, JS) shrink well, which matters for the Redis and object store
// providers. Decode fully reverses Encode, so the provider contract of
// byte-for-byte transparency still holds at the Codec boundary.
type Compressed[V any] struct {
	inner Codec[V]
	alg   Algorithm

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// NewCompressed returns a Compressed codec around inner.
func NewCompressed[V any](inner Codec[V], alg Algorithm) (*Compressed[V], error) {
	c := &Compressed[V]{inner: inner, alg: alg}
	switch alg {
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			_ = enc.Close()
			return nil, err
		}
		c.zenc, c.zdec = enc, dec
	case LZ4:
	default:
		return nil, fmt.Errorf("codec: unknown compression %q", alg)
	}
	return c, nil
}

var lz4Writers = sync.Pool{New: func() any { return lz4.NewWriter(nil) }}

func (c *Compressed[V]) Encode(v V) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.alg == Zstd {
		return c.zenc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	}

	var buf bytes.Buffer
	zw := lz4Writers.Get().(*lz4.Writer)
	defer lz4Writers.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Compressed[V]) Decode(b []byte) (V, error) {
	var zero V
	var raw []byte
	var err error
	if c.alg == Zstd {
		raw, err = c.zdec.DecodeAll(b, nil)
	} else {
		raw, err = io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
	}
	if err != nil {
		return zero, fmt.Errorf("codec: decompress %s: %w", c.alg, err)
	}
	return c.inner.Decode(raw)
}

// Close releases the zstd encoder/decoder. Safe to call on an lz4 codec.
func (c *Compressed[V]) Close() {
	if c.zenc != nil {
		_ = c.zenc.Close()
	}
	if c.zdec != nil {
		c.zdec.Close()
	}
}
