package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a Codec for application/msgpack bodies.
// The zero value is ready to use.
//
// Be mindful of struct tag differences vs JSON: msgpack honors
// `msgpack:"name"` tags and falls back to the Go field name.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
