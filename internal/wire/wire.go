package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("kvcache: corrupt entry")
	magic4     = [...]byte{'K', 'V', 'C', 'E'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | expires(i64 be, unix millis, 0 = never) |
// keyLen(u16 be) | rawKey(keyLen) | vlen(u32 be) | payload(vlen)
func EncodeEntry(rawKey string, expires time.Time, payload []byte) ([]byte, error) {
	if len(rawKey) > 0xFFFF {
		return nil, fmt.Errorf("kvcache: key length %d exceeds %d", len(rawKey), 0xFFFF)
	}
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 8 + 2 + len(rawKey) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(ExpiresMillis(expires)))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(rawKey)))
	buf.Write(u2[:])
	buf.WriteString(rawKey)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)

	return buf.Bytes(), nil
}

// DecodeEntry returns slices into b; callers that keep payload past the
// lifetime of b must copy it.
func DecodeEntry(b []byte) (rawKey string, expires time.Time, payload []byte, err error) {
	const hdr = 4 + 1 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return "", time.Time{}, nil, ErrCorrupt
	}

	off := 5

	// expires
	expires = FromMillis(int64(binary.BigEndian.Uint64(b[off : off+8])))
	off += 8

	// key
	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen > len(b)-off {
		return "", time.Time{}, nil, ErrCorrupt
	}
	rawKey = string(b[off : off+klen])
	off += klen

	// vlen
	if off+4 > len(b) {
		return "", time.Time{}, nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact: trailing bytes are corruption
		return "", time.Time{}, nil, ErrCorrupt
	}

	return rawKey, expires, b[off : off+vlen], nil
}

// ExpiresMillis converts an expiry to epoch millis; the zero time maps to 0.
func ExpiresMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of ExpiresMillis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
