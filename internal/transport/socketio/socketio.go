// Package socketio serves hosts over socket.io. Every connection gets its
// own registry: the host emits "command" with a JSON command and receives
// "event" with a JSON event. A disconnect disposes the connection's
// resolver instances.
package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/transport"
	"github.com/zishang520/socket.io/v2/socket"
)

const (
	// EventCommand carries host commands.
	EventCommand = "command"
	// EventEvent carries worker events.
	EventEvent = "event"
)

// Server accepts socket.io connections and runs one registry per
// connection.
type Server struct {
	ctx         context.Context
	io          *socket.Server
	newRegistry transport.RegistryFactory

	wg sync.WaitGroup
}

// New creates a server. Connections are served under ctx.
func New(ctx context.Context, newRegistry transport.RegistryFactory) *Server {
	s := &Server{
		ctx:         ctx,
		io:          socket.NewServer(nil, nil),
		newRegistry: newRegistry,
	}
	s.io.On("connection", func(clients ...any) {
		if len(clients) == 0 {
			return
		}
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.accept(client)
	})
	return s
}

// Handler returns the HTTP handler serving the socket.io endpoint.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Close disconnects every client and waits for their registries to close.
func (s *Server) Close() {
	s.io.Close(nil)
	s.wg.Wait()
}

func (s *Server) accept(client *socket.Socket) {
	logger := ctxlog.FromContext(s.ctx).With("sid", string(client.Id()))
	ctx := ctxlog.WithLogger(s.ctx, logger)
	logger.Info("Host connected.")

	conn := newConn(client)
	client.On(EventCommand, func(args ...any) {
		// Undecodable payloads still go through the registry so the host
		// receives a rejected event for them.
		var data []byte
		if len(args) > 0 {
			d, err := payload(args[0])
			if err != nil {
				logger.Debug("Undecodable command payload.", "error", err)
			}
			data = d
		}
		conn.deliver(data)
	})
	client.On("disconnect", func(reason ...any) {
		logger.Debug("Socket disconnected.", "reason", reason)
		conn.hangup()
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.hangup()
		if err := transport.Serve(ctx, conn, s.newRegistry(ctx)); err != nil {
			logger.Error("Connection failed.", "error", err)
		}
		client.Disconnect(true)
	}()
}

// payload normalizes what the socket.io parser hands us back to raw JSON.
// Hosts should send the command as a JSON string; structured payloads are
// re-encoded and lose number precision beyond float64.
func payload(arg any) ([]byte, error) {
	switch v := arg.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, fmt.Errorf("empty payload")
	default:
		return json.Marshal(v)
	}
}

type conn struct {
	sock  *socket.Socket
	inbox chan []byte

	once sync.Once
	gone chan struct{}
}

func newConn(sock *socket.Socket) *conn {
	return &conn{
		sock:  sock,
		inbox: make(chan []byte),
		gone:  make(chan struct{}),
	}
}

// deliver hands a command to Recv, preserving arrival order.
func (c *conn) deliver(data []byte) {
	select {
	case c.inbox <- data:
	case <-c.gone:
	}
}

func (c *conn) hangup() {
	c.once.Do(func() { close(c.gone) })
}

// Recv implements transport.Conn.
func (c *conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.gone:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send implements transport.Conn.
func (c *conn) Send(_ context.Context, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.gone:
		// Nobody is listening; the host recreates its state on reconnect.
		return nil
	default:
	}
	return c.sock.Emit(EventEvent, string(data))
}
