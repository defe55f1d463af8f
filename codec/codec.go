// Package codec holds the serializers used to turn cached entries into bytes
// for a provider. Every codec here is safe for concurrent use.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
