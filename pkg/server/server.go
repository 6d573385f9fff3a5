package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/scenewire/scenewire/pkg/dispatch"
	"github.com/scenewire/scenewire/pkg/scene"
	"github.com/scenewire/scenewire/pkg/ws"
)

// Server owns the scene graph and exposes it to clients over the wire
// protocol. All graph access happens on the host loop; the rest of the
// server only shuffles frames.
type Server struct {
	graph      *scene.Graph
	dispatcher *dispatch.Dispatcher
	config     *Config
	clients    *registry
	loop       *loop
	metrics    *metrics
	logger     *slog.Logger

	// pending collects graph events raised while a job runs. The host
	// loop flushes them as pushes after the job's response is written,
	// so clients always see the response before its side effects.
	// Host-loop owned, no lock.
	pending []scene.Event

	mu      sync.Mutex
	ln      net.Listener
	opsLn   net.Listener
	started time.Time
}

// New builds a server around graph. The graph must already hold its
// initial project; mutations from here on happen only on the host
// loop. A nil config uses DefaultConfig.
func New(graph *scene.Graph, config *Config) *Server {
	config = config.withDefaults()
	logger := config.Logger.With("component", "server")
	m := newMetrics(config.Registry)

	s := &Server{
		graph:      graph,
		dispatcher: dispatch.New(graph, dispatch.WithLogger(config.Logger)),
		config:     config,
		clients:    newRegistry(),
		loop:       newLoop(config.QueueSize, config.TickInterval, config.TickBudget, m),
		metrics:    m,
		logger:     logger,
	}
	graph.Subscribe(s.onEvent)
	return s
}

// Dispatcher returns the server's dispatcher so callers can register
// extra query targets, command actions or mesh fields before Run.
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Addr returns the bound scene listener address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// OpsAddr returns the bound operations listener address, or nil when
// the ops listener is disabled or not yet started.
func (s *Server) OpsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opsLn == nil {
		return nil
	}
	return s.opsLn.Addr()
}

// Run listens and serves until ctx is cancelled, then closes every
// client with a going-away frame and returns nil.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.started = time.Now()
	s.mu.Unlock()
	s.logger.Info("listening", "addr", ln.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop.run(ctx)
	}()

	ops, err := s.startOps(&wg)
	if err != nil {
		ln.Close()
		cancel()
		wg.Wait()
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		if ops != nil {
			shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shCancel()
			_ = ops.Shutdown(shCtx)
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.clients.closeAll(ws.CloseGoingAway, "server shutting down")
				wg.Wait()
				s.logger.Info("server stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn performs the upgrade handshake and runs the connection's
// read loop. Non-upgrade HTTP requests get the embedded status page.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))
	br := bufio.NewReader(conn)

	req, err := ws.ReadRequest(br)
	if err != nil {
		s.metrics.handshakeFailures.Inc()
		s.logger.Debug("handshake read failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	key, err := req.WebSocketKey()
	if err != nil {
		s.servePage(conn, req)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.config.HandshakeTimeout))
	if err := ws.WriteAccept(conn, ws.AcceptKey(key)); err != nil {
		s.metrics.handshakeFailures.Inc()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	client := newClient(ws.NewConn(conn, br, s.config.MaxFrameBytes), s.config.WriteTimeout, s.logger)
	s.clients.add(client)
	s.metrics.connectionsTotal.Inc()
	s.metrics.activeConnections.Inc()
	client.logger.Info("client connected", "remote", conn.RemoteAddr().String())

	defer func() {
		s.clients.remove(client.ID)
		s.metrics.activeConnections.Dec()
		client.close(ws.CloseNormal, "")
		client.logger.Info("client disconnected")
	}()

	s.readLoop(ctx, client)
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		op, payload, err := client.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, ws.ErrClosed) && !errors.Is(err, io.EOF) && ctx.Err() == nil {
				client.logger.Debug("read loop ended", "error", err)
			}
			return
		}
		switch op {
		case ws.OpText:
			s.enqueueDispatch(ctx, client, payload)
		case ws.OpBinary:
			s.enqueueImport(client, payload)
		}
	}
}

// enqueueDispatch queues one request envelope for the host loop. When
// the queue is full a busy error is written back immediately from the
// read goroutine.
func (s *Server) enqueueDispatch(ctx context.Context, client *Client, raw []byte) {
	start := time.Now()
	ok := s.loop.enqueue(func() {
		res := s.dispatcher.Dispatch(ctx, raw)
		status := "error"
		if res.Response.Success {
			status = "success"
		}
		s.metrics.requestsTotal.WithLabelValues(status).Inc()
		if err := client.sendResult(res); err != nil {
			client.logger.Warn("response write failed", "error", err)
		} else if res.Binary != nil {
			s.metrics.binaryBytesOut.Add(float64(len(res.Binary)))
		}
		s.metrics.requestDuration.Observe(time.Since(start).Seconds())
		s.flushPushes()
	})
	if !ok {
		s.refuseBusy(client, raw)
	}
}

// enqueueImport queues an inbound binary payload for the host loop.
// Binary frames carry no envelope, so a full queue only drops and
// counts them.
func (s *Server) enqueueImport(client *Client, payload []byte) {
	s.metrics.binaryBytesIn.Add(float64(len(payload)))
	ok := s.loop.enqueue(func() {
		s.applyImport(client, payload)
		s.flushPushes()
	})
	if !ok {
		s.metrics.importsTotal.WithLabelValues("rejected").Inc()
		client.logger.Warn("import dropped, queue full", "bytes", len(payload))
	}
}

// refuseBusy answers a request that could not be queued. The id is
// echoed when the envelope parses so the client can resolve its
// pending call.
func (s *Server) refuseBusy(client *Client, raw []byte) {
	var id *string
	if req, err := dispatch.ParseRequest(raw); err == nil {
		id = req.ID
	}
	resp := &dispatch.Response{
		ID:      id,
		Type:    dispatch.TypeResponse,
		Success: false,
		Error:   "server busy",
	}
	body, err := resp.Marshal()
	if err != nil {
		return
	}
	if err := client.sendText(body); err != nil {
		client.logger.Warn("busy refusal write failed", "error", err)
	}
}

// onEvent runs synchronously inside graph mutations on the host loop.
func (s *Server) onEvent(ev scene.Event) {
	s.pending = append(s.pending, ev)
}

// flushPushes broadcasts the events collected during the current job.
// A failed write is logged and skipped; the dead client's own read
// loop tears it down.
func (s *Server) flushPushes() {
	if len(s.pending) == 0 {
		return
	}
	events := s.pending
	s.pending = nil
	for _, ev := range events {
		body, err := s.dispatcher.PushForEvent(ev)
		if err != nil {
			s.logger.Error("push encode failed", "event", ev.Kind.String(), "error", err)
			continue
		}
		for _, c := range s.clients.snapshot() {
			if err := c.sendText(body); err != nil {
				c.logger.Warn("push write failed", "event", ev.Kind.String(), "error", err)
				continue
			}
			s.metrics.pushesSent.Inc()
		}
	}
}
