package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
)

var ErrUnsupportedContentType = errors.New("codec: unsupported content type")

const (
	MediaJSON     = "application/json"
	MediaMsgpack  = "application/msgpack"
	MediaCBOR     = "application/cbor"
	MediaProtobuf = "application/x-protobuf"
)

var mapStringAny = reflect.TypeOf(map[string]any(nil))

type kind int

const (
	kindText kind = iota
	kindJSON
	kindMsgpack
	kindCBOR
	kindProtobuf
)

// MediaType returns the lowercased media type of a Content-Type header value,
// without parameters.
func MediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func classify(contentType string) kind {
	switch mt := MediaType(contentType); {
	case mt == MediaJSON || strings.HasSuffix(mt, "+json"):
		return kindJSON
	case mt == MediaMsgpack || mt == "application/x-msgpack" || mt == "application/vnd.msgpack":
		return kindMsgpack
	case mt == MediaCBOR || strings.HasSuffix(mt, "+cbor"):
		return kindCBOR
	case mt == MediaProtobuf || mt == "application/protobuf":
		return kindProtobuf
	default:
		return kindText
	}
}

// For returns the codec that decodes a body of the given content type into V.
// Anything that is not a recognized structured type is treated as text, which
// only string, []byte and interface-typed V can hold.
func For[V any](contentType string) (Codec[V], error) {
	switch classify(contentType) {
	case kindJSON:
		return JSON[V]{}, nil
	case kindMsgpack:
		return Msgpack[V]{}, nil
	case kindCBOR:
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		return c, nil
	case kindProtobuf:
		c, err := NewProtobuf[V]()
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedContentType, contentType, err)
		}
		return c, nil
	}

	var zero V
	switch any(&zero).(type) {
	case *string:
		return any(String{}).(Codec[V]), nil
	case *[]byte:
		return any(Bytes{}).(Codec[V]), nil
	case *any:
		return Text[V]{}, nil
	}
	return nil, fmt.Errorf("%w: %q for %T", ErrUnsupportedContentType, contentType, zero)
}

// Unmarshal decodes b into the pointer v according to contentType.
func Unmarshal(contentType string, b []byte, v any) error {
	switch classify(contentType) {
	case kindJSON:
		return json.Unmarshal(b, v)
	case kindMsgpack:
		return msgpack.Unmarshal(b, v)
	case kindCBOR:
		return cbor.Unmarshal(b, v)
	case kindProtobuf:
		m, ok := v.(proto.Message)
		if !ok {
			return fmt.Errorf("%w: %q into %T", ErrUnsupportedContentType, contentType, v)
		}
		return proto.Unmarshal(b, m)
	}

	switch p := v.(type) {
	case *string:
		*p = string(b)
	case *[]byte:
		*p = append((*p)[:0], b...)
	case *any:
		*p = string(b)
	default:
		return fmt.Errorf("%w: %q into %T", ErrUnsupportedContentType, contentType, v)
	}
	return nil
}
