package codec

import (
	"errors"
	"io"
	"math"
)

// Allocation limits to prevent DoS attacks via malicious length prefixes.
const (
	// MaxPayloadBytes is the largest payload any codec will produce or
	// accept (50MB). The transport enforces the same ceiling per frame.
	MaxPayloadBytes = 50 * 1024 * 1024

	// MaxStringLen is the maximum byte length of an encoded string.
	// The uint16 prefix makes this a hard wire limit.
	MaxStringLen = 65535

	// MaxCollectionCount is the maximum number of items in a counted
	// section (vertices, faces, models, images). This prevents OOM from
	// huge counts with small per-item overhead.
	MaxCollectionCount = 4_194_304
)

// Common decoding errors.
var (
	ErrBadMagic           = errors.New("codec: unknown payload magic")
	ErrVersion            = errors.New("codec: unsupported payload version")
	ErrTrailingBytes      = errors.New("codec: trailing bytes after payload")
	ErrAllocationTooLarge = errors.New("codec: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("codec: collection count exceeds limit")
	ErrStringTooLong      = errors.New("codec: string exceeds uint16 length prefix")
)

// Decoder is a binary decoder that reads from a byte buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// Skip advances the position by n bytes.
func (d *Decoder) Skip(n int) error {
	if d.pos+n > len(d.buf) {
		return io.ErrUnexpectedEOF
	}
	d.pos += n
	return nil
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadBool reads a boolean (single byte: 0x00=false, 0x01=true).
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	// Be lenient: any non-zero is true.
	return b != 0x00, nil
}

// ReadUint16 reads a uint16 in big-endian byte order.
func (d *Decoder) ReadUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint16(d.buf[d.pos])<<8 | uint16(d.buf[d.pos+1])
	d.pos += 2
	return v, nil
}

// ReadUint32 reads a uint32 in big-endian byte order.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint32(d.buf[d.pos])<<24 | uint32(d.buf[d.pos+1])<<16 |
		uint32(d.buf[d.pos+2])<<8 | uint32(d.buf[d.pos+3])
	d.pos += 4
	return v, nil
}

// ReadInt16 reads an int16 in big-endian byte order.
func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUint16()
	return int16(v), err
}

// ReadFloat32 reads a float32 in IEEE 754 format (big-endian).
func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUint16()
	if err != nil {
		return "", err
	}
	n := int(length)
	if n > d.Remaining() {
		return "", io.ErrUnexpectedEOF
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

// ReadBlob reads uint32 length-prefixed bytes.
// Returns a copy of the bytes (safe to retain).
// Returns ErrAllocationTooLarge if the byte slice exceeds MaxPayloadBytes.
func (d *Decoder) ReadBlob() ([]byte, error) {
	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if length > MaxPayloadBytes {
		return nil, ErrAllocationTooLarge
	}
	n := int(length)
	if n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

// CheckCount validates a section count read from the wire against
// limits and against the remaining buffer, given the minimum encoded
// size of one item. It should be called before allocating a slice of
// count items.
func (d *Decoder) CheckCount(count uint32, minItemSize int) error {
	if count > MaxCollectionCount {
		return ErrCollectionTooLarge
	}
	if int64(count)*int64(minItemSize) > int64(d.Remaining()) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// Finish verifies the decoder consumed the whole buffer. Payload
// decoders call it last so trailing garbage fails the decode.
func (d *Decoder) Finish() error {
	if !d.EOF() {
		return ErrTrailingBytes
	}
	return nil
}
