package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR is a Codec for application/cbor bodies.
// The zero value is NOT ready to use. Construct with NewCBOR.
//
// Decoding is lenient about map key order; encoding uses preferred
// (smallest) serialization with RFC3339Nano timestamps so request payloads
// echo back the way JSON ones do.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR constructs a CBOR codec. deterministic selects CoreDetEncOptions
// (RFC 8949) instead of PreferredUnsortedEncOptions.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	// untyped maps decode as map[string]any so `any` resources look the same
	// whether the server spoke JSON or CBOR
	dm, err := (cbor.DecOptions{DefaultMapType: mapStringAny}).DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
