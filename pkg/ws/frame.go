package ws

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcode identifies the frame type.
type Opcode uint8

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(0x%x)", uint8(op))
	}
}

// IsControl reports whether the opcode is a control frame.
func (op Opcode) IsControl() bool { return op >= OpClose }

// valid reports whether the opcode is defined by the protocol.
func (op Opcode) valid() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

// Close status codes.
const (
	CloseNormal        uint16 = 1000
	CloseGoingAway     uint16 = 1001
	CloseProtocolError uint16 = 1002
	CloseTooLarge      uint16 = 1009
	CloseInternalError uint16 = 1011
)

// DefaultMaxPayload is the largest frame payload accepted or produced
// when no explicit limit is configured (50MB), sized for whole-project
// snapshots with embedded textures.
const DefaultMaxPayload = 50 * 1024 * 1024

// Frame errors.
var (
	ErrFrameTooLarge     = errors.New("ws: frame payload exceeds limit")
	ErrReservedBits      = errors.New("ws: reserved bits set")
	ErrReservedOpcode    = errors.New("ws: reserved opcode")
	ErrControlTooLong    = errors.New("ws: control frame payload exceeds 125 bytes")
	ErrControlFragmented = errors.New("ws: fragmented control frame")
)

// Frame is a single parsed frame.
type Frame struct {
	Final   bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// ReadFrame reads one frame from r, unmasking the payload in place.
// maxPayload bounds the declared payload length; zero means
// DefaultMaxPayload.
func ReadFrame(r io.Reader, maxPayload int64) (*Frame, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}

	f := &Frame{
		Final:  head[0]&0x80 != 0,
		Opcode: Opcode(head[0] & 0x0F),
		Masked: head[1]&0x80 != 0,
	}
	if head[0]&0x70 != 0 {
		return nil, ErrReservedBits
	}
	if !f.Opcode.valid() {
		return nil, fmt.Errorf("%w: 0x%x", ErrReservedOpcode, uint8(f.Opcode))
	}

	length := int64(head[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		v := binary.BigEndian.Uint64(ext[:])
		if v > uint64(maxPayload) {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, v)
		}
		length = int64(v)
	}
	if length > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	if f.Opcode.IsControl() {
		if length > 125 {
			return nil, ErrControlTooLong
		}
		if !f.Final {
			return nil, ErrControlFragmented
		}
	}

	if f.Masked {
		if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
			return nil, err
		}
	}

	f.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, err
	}
	if f.Masked {
		maskBytes(f.Payload, f.MaskKey)
	}
	return f, nil
}

// EncodeFrame serializes f. When f.Masked is set the payload is XORed
// with f.MaskKey on the wire; f.Payload itself is not modified.
func EncodeFrame(f *Frame) []byte {
	plen := len(f.Payload)

	var b0 byte
	if f.Final {
		b0 = 0x80
	}
	b0 |= byte(f.Opcode) & 0x0F

	headerLen := 2
	switch {
	case plen > 0xFFFF:
		headerLen += 8
	case plen > 125:
		headerLen += 2
	}
	if f.Masked {
		headerLen += 4
	}

	buf := make([]byte, headerLen+plen)
	buf[0] = b0
	offset := 2
	switch {
	case plen > 0xFFFF:
		buf[1] = 127
		binary.BigEndian.PutUint64(buf[2:], uint64(plen))
		offset += 8
	case plen > 125:
		buf[1] = 126
		binary.BigEndian.PutUint16(buf[2:], uint16(plen))
		offset += 2
	default:
		buf[1] = byte(plen)
	}

	if f.Masked {
		buf[1] |= 0x80
		copy(buf[offset:], f.MaskKey[:])
		offset += 4
		copy(buf[offset:], f.Payload)
		maskBytes(buf[offset:], f.MaskKey)
	} else {
		copy(buf[offset:], f.Payload)
	}
	return buf
}

// WriteFrame writes a final, unmasked frame, the server-to-client
// direction.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	_, err := w.Write(EncodeFrame(&Frame{Final: true, Opcode: op, Payload: payload}))
	return err
}

// WriteMaskedFrame writes a final, masked frame with a random key, the
// client-to-server direction.
func WriteMaskedFrame(w io.Writer, op Opcode, payload []byte) error {
	f := &Frame{Final: true, Opcode: op, Masked: true, Payload: payload}
	if _, err := rand.Read(f.MaskKey[:]); err != nil {
		return err
	}
	_, err := w.Write(EncodeFrame(f))
	return err
}

func maskBytes(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}

// EncodeClosePayload builds a close frame payload. The reason is
// truncated to keep the control frame within its 125-byte limit.
func EncodeClosePayload(code uint16, reason string) []byte {
	if len(reason) > 123 {
		reason = reason[:123]
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, code)
	copy(buf[2:], reason)
	return buf
}

// ParseClosePayload splits a close frame payload into its status code
// and reason. An empty payload means no code was sent.
func ParseClosePayload(payload []byte) (code uint16, reason string) {
	if len(payload) < 2 {
		return 0, ""
	}
	return binary.BigEndian.Uint16(payload), string(payload[2:])
}
