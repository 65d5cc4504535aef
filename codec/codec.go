// Package codec decodes response bodies into caller types. The concrete
// codec is chosen from the response Content-Type by For.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
