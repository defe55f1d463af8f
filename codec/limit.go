package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limit when a payload exceeds MaxSize.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit wraps another codec and bounds the encoded size in both directions.
// Encode refuses to produce payloads larger than MaxSize, so an oversized
// resource fails the install instead of landing in the store. Decode refuses
// oversized inputs without invoking Inner, which protects readers of a shared
// store (Redis, S3) against foreign or malicious values.
// If MaxSize <= 0, size limiting is disabled.
type Limit[V any] struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner   Codec[V]
	MaxSize int
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxSize > 0 && len(b) > c.MaxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxSize)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxSize > 0 && len(b) > c.MaxSize {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxSize)
	}
	return c.Inner.Decode(b)
}
