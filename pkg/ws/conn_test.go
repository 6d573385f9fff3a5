package ws

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

type message struct {
	op      Opcode
	payload []byte
	err     error
}

// startServerConn wires a Conn to one end of a pipe and pumps
// ReadMessage results into a channel.
func startServerConn(t *testing.T) (net.Conn, <-chan message) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	conn := NewConn(server, nil, 0)
	ch := make(chan message, 4)
	go func() {
		for {
			op, payload, err := conn.ReadMessage()
			ch <- message{op, payload, err}
			if err != nil {
				return
			}
		}
	}()
	return client, ch
}

func recv(t *testing.T, ch <-chan message) message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return message{}
	}
}

func TestConnReadsMaskedMessages(t *testing.T) {
	client, ch := startServerConn(t)

	go func() {
		WriteMaskedFrame(client, OpText, []byte(`{"id":"q1"}`))
		WriteMaskedFrame(client, OpBinary, []byte{0xDE, 0xAD})
	}()

	m := recv(t, ch)
	if m.err != nil || m.op != OpText || string(m.payload) != `{"id":"q1"}` {
		t.Fatalf("first message = %+v", m)
	}
	m = recv(t, ch)
	if m.err != nil || m.op != OpBinary || !bytes.Equal(m.payload, []byte{0xDE, 0xAD}) {
		t.Fatalf("second message = %+v", m)
	}
}

func TestConnAnswersPingInline(t *testing.T) {
	client, ch := startServerConn(t)

	go func() {
		WriteMaskedFrame(client, OpPing, []byte("hb-1"))
	}()

	pong, err := ReadFrame(client, 0)
	if err != nil {
		t.Fatalf("reading pong: %v", err)
	}
	if pong.Opcode != OpPong {
		t.Fatalf("opcode = %s, want pong", pong.Opcode)
	}
	if string(pong.Payload) != "hb-1" {
		t.Errorf("pong payload = %q, want ping payload echoed", pong.Payload)
	}

	// The ping must not surface as a message.
	go WriteMaskedFrame(client, OpText, []byte("after"))
	m := recv(t, ch)
	if m.err != nil || string(m.payload) != "after" {
		t.Fatalf("message after ping = %+v", m)
	}
}

func TestConnEchoesClose(t *testing.T) {
	client, ch := startServerConn(t)

	go func() {
		WriteMaskedFrame(client, OpClose, EncodeClosePayload(CloseNormal, "done"))
	}()

	echo, err := ReadFrame(client, 0)
	if err != nil {
		t.Fatalf("reading close echo: %v", err)
	}
	if echo.Opcode != OpClose {
		t.Fatalf("opcode = %s, want close", echo.Opcode)
	}
	code, _ := ParseClosePayload(echo.Payload)
	if code != CloseNormal {
		t.Errorf("echoed code = %d, want %d", code, CloseNormal)
	}

	m := recv(t, ch)
	if !errors.Is(m.err, ErrClosed) {
		t.Errorf("ReadMessage error = %v, want ErrClosed", m.err)
	}
}

func TestConnAcceptsUnmaskedData(t *testing.T) {
	client, ch := startServerConn(t)

	go WriteFrame(client, OpText, []byte("bare"))

	m := recv(t, ch)
	if m.err != nil || m.op != OpText || string(m.payload) != "bare" {
		t.Fatalf("unmasked message = %+v, want delivered", m)
	}
}

func TestConnRejectsFragmentedData(t *testing.T) {
	client, ch := startServerConn(t)

	go func() {
		f := &Frame{Final: false, Opcode: OpText, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}, Payload: []byte("part")}
		client.Write(EncodeFrame(f))
	}()

	m := recv(t, ch)
	if !errors.Is(m.err, ErrFragmented) {
		t.Errorf("error = %v, want ErrFragmented", m.err)
	}
}

func TestConnWriteMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	conn := NewConn(server, nil, 0)

	go conn.WriteMessage(OpBinary, []byte("MESH"))

	f, err := ReadFrame(client, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.Opcode != OpBinary || f.Masked {
		t.Errorf("frame = %+v, want unmasked binary", f)
	}
	if string(f.Payload) != "MESH" {
		t.Errorf("payload = %q", f.Payload)
	}

	if err := conn.WriteMessage(OpPing, nil); err == nil {
		t.Error("WriteMessage accepted a control opcode")
	}
}

func TestConnWriteMessageRespectsLimit(t *testing.T) {
	_, server := net.Pipe()
	defer server.Close()
	conn := NewConn(server, nil, 8)

	if err := conn.WriteMessage(OpBinary, make([]byte, 9)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("error = %v, want ErrFrameTooLarge", err)
	}
}

func TestConnCloseSendsFrameOnce(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	conn := NewConn(server, nil, 0)

	go func() {
		conn.Close(CloseGoingAway, "shutdown")
		conn.Close(CloseGoingAway, "shutdown")
	}()

	f, err := ReadFrame(client, 0)
	if err != nil {
		t.Fatal(err)
	}
	code, reason := ParseClosePayload(f.Payload)
	if f.Opcode != OpClose || code != CloseGoingAway || reason != "shutdown" {
		t.Errorf("close frame = %s %d %q", f.Opcode, code, reason)
	}

	// Second Close must not send another frame; the connection is gone.
	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, err := ReadFrame(client, 0); err == nil {
		t.Error("unexpected second close frame")
	}
}
