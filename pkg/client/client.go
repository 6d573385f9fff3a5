package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scenewire/scenewire/pkg/codec"
	"github.com/scenewire/scenewire/pkg/dispatch"
)

var (
	// ErrClosed is returned for requests made after the connection
	// closed.
	ErrClosed = errors.New("client: connection closed")
	// ErrServer wraps error responses from the server; the server's
	// message is appended.
	ErrServer = errors.New("client: server error")
	// ErrBinaryMismatch is returned when the binary frame following a
	// response does not match what the response announced.
	ErrBinaryMismatch = errors.New("client: binary payload mismatch")
)

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout caps how long each request waits for its
// response. Zero means the caller's context alone bounds the wait.
// Default: 10 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithPushBuffer sets the push channel capacity. Pushes arriving with
// the buffer full are dropped and counted. Default: 16.
func WithPushBuffer(n int) Option {
	return func(c *Client) { c.pushBuffer = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDialer sets the WebSocket dialer. Defaults to
// websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// call is one in-flight request.
type call struct {
	id        string
	wantMagic *codec.Magic // non-nil when a binary frame must follow

	resp   *dispatch.Response
	binary []byte
	err    error
	done   chan struct{}
}

// Client is a connection to a scene server.
type Client struct {
	conn           *websocket.Conn
	logger         *slog.Logger
	dialer         *websocket.Dialer
	requestTimeout time.Duration
	pushBuffer     int

	// writeMu serializes frame writes; the underlying connection
	// allows only one concurrent writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	seq      uint64
	pending  map[string]*call
	awaiting *call // answered, waiting for its binary frame
	closed   bool
	closeErr error

	pushes  chan *dispatch.Push
	dropped atomic.Uint64
	done    chan struct{}
}

// Dial connects to a scene server at url (e.g. "ws://host:8765/").
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		logger:         slog.Default(),
		dialer:         websocket.DefaultDialer,
		requestTimeout: 10 * time.Second,
		pushBuffer:     16,
		pending:        make(map[string]*call),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")
	c.pushes = make(chan *dispatch.Push, c.pushBuffer)

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.conn = conn

	go c.readPump()
	return c, nil
}

// Pushes returns the channel push envelopes are delivered on. It is
// closed when the connection ends.
func (c *Client) Pushes() <-chan *dispatch.Push { return c.pushes }

// PushesDropped reports how many pushes were discarded because the
// push buffer was full.
func (c *Client) PushesDropped() uint64 { return c.dropped.Load() }

// Close sends a close frame and tears the connection down. In-flight
// requests fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	return c.conn.Close()
}

// readPump is the single reader. It routes responses to pending
// calls, binary frames to the call awaiting one, and pushes to the
// push channel.
func (c *Client) readPump() {
	for {
		mt, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		switch mt {
		case websocket.TextMessage:
			c.handleText(payload)
		case websocket.BinaryMessage:
			c.handleBinary(payload)
		}
	}
}

func (c *Client) handleText(payload []byte) {
	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &kind); err != nil {
		c.logger.Warn("unparseable text frame", "error", err)
		return
	}

	if kind.Type == dispatch.TypePush {
		push, err := dispatch.ParsePush(payload)
		if err != nil {
			c.logger.Warn("malformed push", "error", err)
			return
		}
		select {
		case c.pushes <- push:
		default:
			c.dropped.Add(1)
		}
		return
	}

	resp, err := dispatch.ParseResponse(payload)
	if err != nil {
		c.logger.Warn("malformed response", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.awaiting != nil {
		// The server writes a binary payload directly behind its
		// response; a text frame in between breaks the pairing.
		c.awaiting.err = fmt.Errorf("%w: response arrived before binary frame", ErrBinaryMismatch)
		close(c.awaiting.done)
		c.awaiting = nil
	}

	if resp.ID == nil {
		c.logger.Warn("response without id dropped", "error", resp.Error)
		return
	}
	call, ok := c.pending[*resp.ID]
	if !ok {
		c.logger.Debug("response for unknown id", "id", *resp.ID)
		return
	}
	delete(c.pending, *resp.ID)

	call.resp = resp
	if call.wantMagic == nil || !resp.Success {
		close(call.done)
		return
	}
	c.awaiting = call
}

func (c *Client) handleBinary(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := c.awaiting
	if call == nil {
		c.logger.Warn("unsolicited binary frame dropped", "bytes", len(payload))
		return
	}
	c.awaiting = nil

	if magic, ok := codec.PeekMagic(payload); !ok || magic != *call.wantMagic {
		call.err = fmt.Errorf("%w: magic %q, want %q", ErrBinaryMismatch, magic.String(), call.wantMagic.String())
		close(call.done)
		return
	}
	var announced struct {
		BinarySize int `json:"binarySize"`
	}
	if err := json.Unmarshal(call.resp.Data, &announced); err == nil &&
		announced.BinarySize != len(payload) {
		call.err = fmt.Errorf("%w: %d bytes, response announced %d",
			ErrBinaryMismatch, len(payload), announced.BinarySize)
		close(call.done)
		return
	}

	call.binary = payload
	close(call.done)
}

// fail completes every outstanding call and closes the push channel.
// Called once, from the read pump.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		err = ErrClosed
	}
	c.closeErr = err
	c.closed = true
	for id, call := range c.pending {
		call.err = err
		close(call.done)
		delete(c.pending, id)
	}
	if c.awaiting != nil {
		c.awaiting.err = err
		close(c.awaiting.done)
		c.awaiting = nil
	}
	c.mu.Unlock()

	close(c.done)
	close(c.pushes)
	_ = c.conn.Close()
}

// do sends one request and waits for its response, and for the
// following binary frame when wantMagic is set.
func (c *Client) do(ctx context.Context, req *dispatch.Request, wantMagic *codec.Magic) (*dispatch.Response, []byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrClosed
	}
	c.seq++
	id := "q" + strconv.FormatUint(c.seq, 10)
	req.ID = &id
	call := &call{id: id, wantMagic: wantMagic, done: make(chan struct{})}
	c.pending[id] = call
	c.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		c.abandon(call)
		return nil, nil, fmt.Errorf("encoding request: %w", err)
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, body)
	c.writeMu.Unlock()
	if err != nil {
		c.abandon(call)
		return nil, nil, fmt.Errorf("sending request: %w", err)
	}

	select {
	case <-call.done:
		if call.err != nil {
			return nil, nil, call.err
		}
		return call.resp, call.binary, nil
	case <-ctx.Done():
		c.abandon(call)
		return nil, nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.closeErr
		c.mu.Unlock()
		return nil, nil, err
	}
}

// abandon forgets a call whose caller gave up waiting.
func (c *Client) abandon(call *call) {
	c.mu.Lock()
	delete(c.pending, call.id)
	if c.awaiting == call {
		c.awaiting = nil
	}
	c.mu.Unlock()
}

// sendBinary writes one binary frame.
func (c *Client) sendBinary(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// errFromResponse converts an error response into an error.
func errFromResponse(resp *dispatch.Response) error {
	if resp.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrServer, resp.Error)
}
