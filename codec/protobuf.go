package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Protobuf is a Codec for application/x-protobuf bodies. V must be a generated
// message pointer type (e.g. *structpb.Struct); new messages are created from
// V's descriptor, so no constructor is needed.
type Protobuf[V any] struct {
	tmpl proto.Message
}

// NewProtobuf returns a Protobuf codec for V, or an error if V is not a
// proto.Message.
func NewProtobuf[V any]() (Protobuf[V], error) {
	var zero V
	m, ok := any(zero).(proto.Message)
	if !ok {
		return Protobuf[V]{}, fmt.Errorf("codec: %T is not a proto.Message", zero)
	}
	return Protobuf[V]{tmpl: m}, nil
}

func (c Protobuf[V]) Encode(v V) ([]byte, error) {
	m, ok := any(v).(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (c Protobuf[V]) Decode(b []byte) (V, error) {
	var zero V
	if c.tmpl == nil {
		return zero, fmt.Errorf("codec: protobuf codec not initialized")
	}
	m := c.tmpl.ProtoReflect().New().Interface()
	if err := proto.Unmarshal(b, m); err != nil {
		return zero, err
	}
	return m.(V), nil
}
