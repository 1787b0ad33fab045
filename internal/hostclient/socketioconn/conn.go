// Package socketioconn connects a host client to a worker served over
// socket.io.
package socketioconn

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/eventqueue"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	eventCommand = "command"
	eventEvent   = "event"

	// DefaultConnectTimeout bounds the initial connection.
	DefaultConnectTimeout = 15 * time.Second
)

// Options configures Dial.
type Options struct {
	Namespace          string
	InsecureSkipVerify bool
	// Reconnect lets the socket reconnect after a drop. The worker boots a
	// fresh registry for the new connection and the host client re-creates
	// its instances when it sees the new ready event.
	Reconnect      bool
	ConnectTimeout time.Duration
}

// Conn implements hostclient.Conn over a socket.io client socket.
type Conn struct {
	sock   *socket.Socket
	events *eventqueue.Queue
}

// Dial connects to a worker at rawURL, e.g. http://127.0.0.1:7878/socket.io/.
func Dial(ctx context.Context, rawURL string, o Options) (*Conn, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))
	opts.SetReconnection(o.Reconnect)

	namespace := o.Namespace
	if namespace == "" {
		namespace = "/"
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	c := &Conn{events: eventqueue.New()}
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	c.sock = manager.Socket(namespace, opts)

	connectChan := make(chan error, 1)
	c.sock.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to worker.", "sid", c.sock.Id())
		connectChan <- nil
	})
	c.sock.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})
	c.sock.On(types.EventName(eventEvent), func(args ...any) {
		if len(args) == 0 {
			return
		}
		ev, err := decode(args[0])
		if err != nil {
			logger.Warn("Dropping undecodable event.", "error", err)
			return
		}
		c.events.Push(ev)
	})
	c.sock.On(types.EventName("disconnect"), func(reason ...any) {
		logger.Info("Disconnected from worker.", "reason", reason)
		if !o.Reconnect {
			c.events.Close()
		}
	})

	c.sock.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			c.sock.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		c.sock.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		c.sock.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

func decode(arg any) (protocol.Event, error) {
	switch v := arg.(type) {
	case string:
		return protocol.DecodeEvent([]byte(v))
	case []byte:
		return protocol.DecodeEvent(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return protocol.Event{}, err
		}
		return protocol.DecodeEvent(data)
	}
}

// Send implements hostclient.Conn. Commands are sent as JSON strings so
// numbers keep their precision.
func (c *Conn) Send(_ context.Context, cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.sock.Emit(eventCommand, string(data))
}

// Next implements hostclient.Conn.
func (c *Conn) Next(ctx context.Context) (protocol.Event, error) {
	ev, err := c.events.Pull(ctx)
	if errors.Is(err, eventqueue.ErrClosed) {
		return protocol.Event{}, io.EOF
	}
	return ev, err
}

// Close disconnects the socket and ends the event stream.
func (c *Conn) Close() error {
	c.sock.Disconnect()
	c.events.Close()
	return nil
}
