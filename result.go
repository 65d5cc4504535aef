package inferkit

import "github.com/unkn0wn-root/inferkit/codec"

// Result is the body of a write response.
type Result struct {
	ContentType string
	Body        []byte
}

// Decode unmarshals the body into v according to ContentType (JSON, msgpack,
// CBOR, protobuf, or text into *string / *[]byte / *any).
func (r Result) Decode(v any) error {
	return codec.Unmarshal(r.ContentType, r.Body, v)
}

// Empty reports whether the response carried no body.
func (r Result) Empty() bool { return len(r.Body) == 0 }
