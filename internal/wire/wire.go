// Package wire frames the bytes stored in a selection slot so a reader can
// tell a value it wrote from foreign or truncated data.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version  byte = 1
	kindSlot byte = 1

	hdrLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("inferkit: corrupt slot")
	magic4     = [...]byte{'I', 'K', 'S', 'L'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Slot: magic(4) | ver(1) | kind(1=slot) | savedAt(unix nanos, i64 be) | vlen(u32 be) | payload(vlen)
func EncodeSlot(savedAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSlot)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(savedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeSlot validates b and returns its save time and payload. The payload
// aliases b. Trailing bytes after the payload are corruption.
func DecodeSlot(b []byte) (savedAt time.Time, payload []byte, err error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindSlot {
		return time.Time{}, nil, ErrCorrupt
	}

	off := 6

	ns := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return time.Time{}, nil, ErrCorrupt
	}

	return time.Unix(0, ns), b[off : off+vlen], nil
}
