package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenewire/scenewire/pkg/dispatch"
	"github.com/scenewire/scenewire/pkg/ws"
)

// Client is one connected editor client.
type Client struct {
	// ID is the server-assigned connection id, used only for logs.
	ID string

	conn         *ws.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	// mu orders multi-frame writes. A binary payload must land
	// directly behind the response that announced it, so the pair is
	// written under one critical section and pushes from other jobs
	// cannot slip between them.
	mu sync.Mutex
}

func newClient(conn *ws.Conn, writeTimeout time.Duration, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger.With("client", id),
	}
}

// sendResult writes a dispatch result: the response text frame,
// immediately followed by its binary frame when present.
func (c *Client) sendResult(res *dispatch.Result) error {
	body, err := res.Response.Marshal()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline()
	if err := c.conn.WriteMessage(ws.OpText, body); err != nil {
		return err
	}
	if res.Binary == nil {
		return nil
	}
	c.deadline()
	return c.conn.WriteMessage(ws.OpBinary, res.Binary)
}

// sendText writes a single text frame, used for pushes and for busy
// refusals written straight from the read goroutine.
func (c *Client) sendText(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline()
	return c.conn.WriteMessage(ws.OpText, body)
}

func (c *Client) deadline() {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}

// close sends a close frame and tears down the connection.
func (c *Client) close(code uint16, reason string) {
	_ = c.conn.Close(code, reason)
}
