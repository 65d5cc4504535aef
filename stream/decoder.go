package stream

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder converts raw byte chunks into UTF-8 text. It is stateful: an
// incomplete multi-byte sequence at the end of a chunk is held back and
// completed by the next chunk. Invalid sequences decode to U+FFFD.
// A Decoder serves exactly one stream.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func NewDecoder() *Decoder {
	return &Decoder{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// Decode returns the text decodable from chunk plus any bytes held back from
// earlier calls.
func (d *Decoder) Decode(chunk []byte) string {
	return d.run(chunk, false)
}

// Flush decodes whatever is still held back, as at end of stream.
func (d *Decoder) Flush() string {
	return d.run(nil, true)
}

func (d *Decoder) run(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out = append(out, d.dst[:nDst]...)
		src = src[nSrc:]

		switch {
		case err == nil:
			return string(out)
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return string(out)
		default:
			// the UTF-8 decoder replaces instead of failing; keep the rest for
			// the next call rather than dropping it
			d.pending = append([]byte(nil), src...)
			return string(out)
		}
	}
}
