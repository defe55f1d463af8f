package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1

	maxNameLen = 0xFFFF
)

var (
	ErrCorrupt = errors.New("offcache: corrupt entry")
	magic4     = [...]byte{'O', 'F', 'F', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | nlen(u16 be) | name(nlen) | vlen(u32 be) | payload(vlen)
//
// name is the generation the entry was written for. Readers compare it
// against the generation they are serving and drop foreign entries.
func EncodeEntry(name string, payload []byte) []byte {
	if l := len(name); l == 0 || l > maxNameLen {
		panic("offcache: invalid generation name length")
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(name) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(name)))
	buf.Write(u2[:])
	buf.WriteString(name)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (name string, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return "", nil, ErrCorrupt
	}

	off := 6

	// name
	nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if nlen == 0 || nlen > len(b)-off {
		return "", nil, ErrCorrupt
	}
	nameBytes := b[off : off+nlen]
	off += nlen

	// vlen
	if off+4 > len(b) {
		return "", nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // exact length; trailing bytes are corruption
		return "", nil, ErrCorrupt
	}

	return string(nameBytes), b[off : off+vlen], nil
}
