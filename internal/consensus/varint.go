package consensus

import "encoding/binary"

// cursor is a forward-only byte reader shared by every binary parser in this
// package, following the same small helper shape the rest of the codec layer
// is built from.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, newErr(ErrTruncatedStream, "unexpected end of stream")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (uint8, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU16le() (uint16, error) {
	b, err := c.readExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) readU32le() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readU64le() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readVarInt() (uint64, error) {
	return readVarInt(c)
}

// AppendU16LE appends v as a 2-byte little-endian value to dst.
func AppendU16LE(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU32LE appends v as a 4-byte little-endian value to dst.
func AppendU32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU64LE appends v as an 8-byte little-endian value to dst.
func AppendU64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendVarInt appends n using the spec §4.1 varint encoding:
// n<0xFD -> 1 byte; n<0x10000 -> 0xFD+u16LE; n<2^32 -> 0xFE+u32LE; else 0xFF+u64LE.
func AppendVarInt(dst []byte, n uint64) []byte {
	switch {
	case n < 0xFD:
		return append(dst, byte(n))
	case n < 0x10000:
		dst = append(dst, 0xFD)
		return AppendU16LE(dst, uint16(n))
	case n < 1<<32:
		dst = append(dst, 0xFE)
		return AppendU32LE(dst, uint32(n))
	default:
		dst = append(dst, 0xFF)
		return AppendU64LE(dst, n)
	}
}

// VarIntSize returns the number of bytes AppendVarInt(nil, n) would produce.
func VarIntSize(n uint64) int {
	switch {
	case n < 0xFD:
		return 1
	case n < 0x10000:
		return 3
	case n < 1<<32:
		return 5
	default:
		return 9
	}
}

// ReadVarIntPrefix reads a single varint from the front of b and returns its
// value plus the remaining, unconsumed bytes. Used by callers outside this
// package (the peer protocol's list payloads) that parse a varint-prefixed
// field without going through a full message parser.
func ReadVarIntPrefix(b []byte) (uint64, []byte, error) {
	c := newCursor(b)
	n, err := c.readVarInt()
	if err != nil {
		return 0, nil, err
	}
	return n, b[c.pos:], nil
}

type byteReader interface {
	readU8() (uint8, error)
	readU16le() (uint16, error)
	readU32le() (uint32, error)
	readU64le() (uint64, error)
}

func readVarInt(c byteReader) (uint64, error) {
	prefix, err := c.readU8()
	if err != nil {
		return 0, err
	}
	switch {
	case prefix < 0xFD:
		return uint64(prefix), nil
	case prefix == 0xFD:
		v, err := c.readU16le()
		if err != nil {
			return 0, newErr(ErrBadVarInt, "truncated varint (u16)")
		}
		return uint64(v), nil
	case prefix == 0xFE:
		v, err := c.readU32le()
		if err != nil {
			return 0, newErr(ErrBadVarInt, "truncated varint (u32)")
		}
		return uint64(v), nil
	default:
		v, err := c.readU64le()
		if err != nil {
			return 0, newErr(ErrBadVarInt, "truncated varint (u64)")
		}
		return v, nil
	}
}
