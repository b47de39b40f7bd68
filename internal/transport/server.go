// Package transport adapts the server dispatch core (C5) and the client
// correlation core (C6) to real TCP connections: framing bytes on and off
// the wire with internal/framing, and driving the high-watermark read-pause
// protocol through internal/connlifecycle.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dkoosis/goarpc/internal/connlifecycle"
	"github.com/dkoosis/goarpc/internal/framing"
	"github.com/dkoosis/goarpc/internal/jsonrpc"
	"github.com/dkoosis/goarpc/internal/logging"
	"github.com/dkoosis/goarpc/internal/rpcerror"
	"github.com/dkoosis/goarpc/internal/rpcserver"
)

// DefaultHighWaterMark is the pending-write-bytes threshold above which a
// connection's reads are paused until the buffered responses drain.
const DefaultHighWaterMark = 64 * 1024

// DefaultServerMaxMessageBytes is the declared-length ceiling the server
// applies to inbound frames (see internal/framing).
const DefaultServerMaxMessageBytes = 100 * 1024 * 1024

// Server accepts connections and feeds their decoded frames to a dispatcher.
type Server struct {
	dispatcher      *rpcserver.Dispatcher
	log             logging.Logger
	maxMessageBytes int
	highWaterMark   int

	mu    sync.Mutex
	conns map[*serverConn]struct{}
}

// ServerOption customizes a Server built by NewServer.
type ServerOption func(*Server)

// WithMaxMessageBytes overrides DefaultServerMaxMessageBytes.
func WithMaxMessageBytes(n int) ServerOption {
	return func(s *Server) { s.maxMessageBytes = n }
}

// WithHighWaterMark overrides DefaultHighWaterMark.
func WithHighWaterMark(n int) ServerOption {
	return func(s *Server) { s.highWaterMark = n }
}

// NewServer builds a Server that dispatches every connection's frames
// through dispatcher.
func NewServer(dispatcher *rpcserver.Dispatcher, log logging.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logging.GetNoopLogger()
	}
	s := &Server{
		dispatcher:      dispatcher,
		log:             log.WithField("component", "transport_server"),
		maxMessageBytes: DefaultServerMaxMessageBytes,
		highWaterMark:   DefaultHighWaterMark,
		conns:           make(map[*serverConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections from ln until ctx is cancelled or ln.Accept
// returns a non-recoverable error. Each connection is handled on its own
// goroutine, the idiomatic Go stand-in for one dispatcher thread per
// connection in an event-loop design.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		sc := s.newServerConn(nc)
		s.track(sc)
		go sc.serve(ctx)
	}
}

func (s *Server) track(sc *serverConn) {
	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sc *serverConn) {
	s.mu.Lock()
	delete(s.conns, sc)
	s.mu.Unlock()
}

// serverConn is one accepted connection: a framing decoder feeding the
// dispatcher, and a write path that tracks pending response bytes against
// the high-watermark threshold.
type serverConn struct {
	server *Server
	nc     net.Conn
	dec    *framing.Decoder
	life   *connlifecycle.Lifecycle
	gate   *gate
	log    logging.Logger

	writeMu sync.Mutex
	pending int64
}

func (s *Server) newServerConn(nc net.Conn) *serverConn {
	sc := &serverConn{
		server: s,
		nc:     nc,
		dec:    framing.NewDecoder(s.maxMessageBytes),
		gate:   newOpenGate(),
		log:    s.log.WithField("peer", nc.RemoteAddr().String()),
	}
	sc.life = connlifecycle.New(connlifecycle.Hooks{
		StopRead:  sc.gate.close,
		StartRead: sc.gate.open,
	}, sc.log)
	return sc
}

func (sc *serverConn) serve(ctx context.Context) {
	defer sc.server.untrack(sc)
	defer sc.nc.Close()

	done := ctx.Done()
	if err := sc.life.Start(ctx); err != nil {
		sc.log.Error("failed to start connection lifecycle", "error", err)
		return
	}

	buf := make([]byte, 32*1024)
	for {
		if !sc.gate.wait(done) {
			return
		}

		n, err := sc.nc.Read(buf)
		if n > 0 {
			sc.dec.Feed(buf[:n])
			if !sc.drainFrames(ctx) {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				sc.log.Warn("connection read error", "error", err)
			}
			_ = sc.life.Close(ctx)
			return
		}
	}
}

// drainFrames decodes and dispatches every complete frame currently
// buffered, returning false if a malformed frame forced the connection
// closed.
func (sc *serverConn) drainFrames(ctx context.Context) bool {
	for {
		body, ok, err := sc.dec.Next()
		if err != nil {
			sc.log.Warn("frame decode error, closing connection", "error", err)
			sc.write(ctx, framingErrorBody())
			_ = sc.life.Close(ctx)
			return false
		}
		if !ok {
			return true
		}

		closed := false
		sc.server.dispatcher.Handle(body, func(resp []byte) {
			sc.write(ctx, resp)
		}, func() {
			closed = true
		})
		if closed {
			_ = sc.life.Close(ctx)
			return false
		}
	}
}

// write frames and sends one response body, pausing further reads while
// the outstanding write volume exceeds the high-watermark threshold.
func (sc *serverConn) write(ctx context.Context, body []byte) {
	frame := framing.Encode(body)

	newPending := atomic.AddInt64(&sc.pending, int64(len(frame)))
	if newPending > int64(sc.server.highWaterMark) {
		_ = sc.life.HighWaterMark(ctx)
	}

	sc.writeMu.Lock()
	_, err := sc.nc.Write(frame)
	sc.writeMu.Unlock()
	if err != nil {
		sc.log.Warn("write failed", "error", err)
	}

	remaining := atomic.AddInt64(&sc.pending, -int64(len(frame)))
	if remaining <= int64(sc.server.highWaterMark) {
		_ = sc.life.Drained(ctx)
	}
}

// framingErrorBody builds the PARSE_ERROR response body sent when a frame
// violates the wire codec itself (as opposed to a well-framed but
// malformed JSON-RPC envelope, which the dispatcher handles).
func framingErrorBody() []byte {
	resp := &jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		ID:      json.RawMessage("null"),
		Error:   jsonrpc.NewErrorFromWire(rpcerror.ToWireError(rpcerror.New(rpcerror.ParseError, nil, nil))),
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	return raw
}
