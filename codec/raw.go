package codec

import (
	"encoding/json"
	"fmt"
)

// Bytes is an identity codec for []byte values.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String converts between string and []byte. By convention this assumes UTF-8
// and performs no validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

// Text decodes a text body into an untyped V (interface type) holding a
// string. Used when a resource is fetched as `any` and the server answers
// with a non-JSON content type.
type Text[V any] struct{}

func (Text[V]) Encode(v V) ([]byte, error) {
	if s, ok := any(v).(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(v)
}

func (Text[V]) Decode(b []byte) (V, error) {
	var v V
	p, ok := any(&v).(*any)
	if !ok {
		return v, fmt.Errorf("codec: cannot decode text into %T", v)
	}
	*p = string(b)
	return v, nil
}
