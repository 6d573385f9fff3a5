package ws

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn errors.
var (
	// ErrClosed is returned by ReadMessage after the close exchange
	// completes or the connection drops.
	ErrClosed = errors.New("ws: connection closed")
	// ErrFragmented is returned for fragmented data messages, which
	// this protocol subset does not use.
	ErrFragmented = errors.New("ws: fragmented messages not supported")
)

// Conn is a server-side message connection on top of an upgraded
// net.Conn. ReadMessage must be called from a single goroutine; writes
// may come from any goroutine. Individual frames are written atomically
// under an internal lock, so inline pong replies cannot tear a data
// frame written concurrently.
type Conn struct {
	conn       net.Conn
	br         *bufio.Reader
	maxPayload int64

	wmu       sync.Mutex
	closeSent bool
}

// NewConn wraps an upgraded connection. br must be the reader the
// handshake was parsed from so bytes the client pipelined behind the
// upgrade are not lost. maxPayload zero means DefaultMaxPayload.
func NewConn(conn net.Conn, br *bufio.Reader, maxPayload int64) *Conn {
	if br == nil {
		br = bufio.NewReader(conn)
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Conn{conn: conn, br: br, maxPayload: maxPayload}
}

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn { return c.conn }

// SetReadDeadline sets the read deadline on the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the underlying connection.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// ReadMessage blocks until the next text or binary message. Pings are
// answered inline, pongs are dropped, and a close frame is echoed
// before ErrClosed is returned. Any protocol violation also closes the
// message stream.
func (c *Conn) ReadMessage() (Opcode, []byte, error) {
	for {
		f, err := ReadFrame(c.br, c.maxPayload)
		if err != nil {
			return 0, nil, err
		}

		switch f.Opcode {
		case OpPing:
			if err := c.writeControl(OpPong, f.Payload); err != nil {
				return 0, nil, err
			}
		case OpPong:
			// Keepalive reply, nothing to do.
		case OpClose:
			code, _ := ParseClosePayload(f.Payload)
			if code == 0 {
				code = CloseNormal
			}
			_ = c.writeControl(OpClose, EncodeClosePayload(code, ""))
			return 0, nil, ErrClosed
		case OpText, OpBinary:
			if !f.Final {
				return 0, nil, ErrFragmented
			}
			// Unmasked client frames are tolerated; masking only protects
			// intermediaries and local tools often skip it.
			return f.Opcode, f.Payload, nil
		case OpContinuation:
			return 0, nil, ErrFragmented
		default:
			return 0, nil, fmt.Errorf("%w: %s", ErrReservedOpcode, f.Opcode)
		}
	}
}

// WriteMessage writes a final, unmasked data frame.
func (c *Conn) WriteMessage(op Opcode, payload []byte) error {
	if op != OpText && op != OpBinary {
		return fmt.Errorf("ws: WriteMessage with control opcode %s", op)
	}
	if int64(len(payload)) > c.maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.conn, op, payload)
}

func (c *Conn) writeControl(op Opcode, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteFrame(c.conn, op, payload)
}

// Close sends a close frame unless one was already sent, then closes
// the underlying connection.
func (c *Conn) Close(code uint16, reason string) error {
	c.wmu.Lock()
	if !c.closeSent {
		c.closeSent = true
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = WriteFrame(c.conn, OpClose, EncodeClosePayload(code, reason))
	}
	c.wmu.Unlock()
	return c.conn.Close()
}
