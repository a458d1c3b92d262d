package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("querycache: corrupt response entry")
	magic4     = [...]byte{'Q', 'R', 'Y', 'C'}
)

// Frame is one stored response: the generation it was written at, its absolute
// expiry and the codec payload.
type Frame struct {
	Gen     uint64
	Expires time.Time // zero => no expiry
	Payload []byte
}

// Expired reports whether f should no longer be served at now.
func (f Frame) Expired(now time.Time) bool {
	return !f.Expires.IsZero() && !now.Before(f.Expires)
}

// Encode: magic(4) | ver(1) | gen(u64 be) | expires(unix nanos i64 be, 0 = none) | vlen(u32 be) | payload(vlen)
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(f.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], f.Gen)
	buf.Write(u8[:])

	var exp int64
	if !f.Expires.IsZero() {
		exp = f.Expires.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])

	buf.Write(f.Payload)
	return buf.Bytes()
}

// Decode parses b. The returned payload aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Frame{}, ErrCorrupt
	}
	off := 5

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Frame{}, ErrCorrupt
	}

	f := Frame{Gen: gen, Payload: b[off : off+vlen]}
	if exp != 0 {
		f.Expires = time.Unix(0, exp)
	}
	return f, nil
}
