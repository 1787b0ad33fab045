// Package inproc connects a host to a worker inside the same process.
// Commands and events still travel as JSON so the link behaves like a real
// connection. Restart drops the worker and boots a fresh one.
package inproc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/eventqueue"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/registry"
	"github.com/specialistvlad/liveresolver/internal/transport"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("inproc link closed")

// Link is the host end of an in-process connection.
type Link struct {
	ctx         context.Context
	newRegistry transport.RegistryFactory
	events      *eventqueue.Queue

	mu     sync.Mutex
	worker *worker
	closed bool
}

type worker struct {
	reg   *registry.Registry
	inbox chan []byte
	gone  chan struct{}
	done  chan struct{}
	sink  *eventqueue.Queue
}

// New boots a worker and returns the host end of the link.
func New(ctx context.Context, newRegistry transport.RegistryFactory) *Link {
	l := &Link{
		ctx:         ctx,
		newRegistry: newRegistry,
		events:      eventqueue.New(),
	}
	l.worker = l.boot()
	return l
}

func (l *Link) boot() *worker {
	w := &worker{
		reg:   l.newRegistry(l.ctx),
		inbox: make(chan []byte),
		gone:  make(chan struct{}),
		done:  make(chan struct{}),
		sink:  l.events,
	}
	go func() {
		defer close(w.done)
		if err := transport.Serve(l.ctx, w, w.reg); err != nil {
			ctxlog.FromContext(l.ctx).Error("In-process worker failed.", "error", err)
		}
	}()
	return w
}

// Registry returns the registry of the running worker.
func (l *Link) Registry() *registry.Registry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.worker.reg
}

// Send encodes cmd and hands it to the worker.
func (l *Link) Send(ctx context.Context, cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.worker.inbox <- data:
		return nil
	case <-l.worker.done:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next event from the worker. io.EOF is returned once the
// link is closed and every event has been consumed.
func (l *Link) Next(ctx context.Context) (protocol.Event, error) {
	ev, err := l.events.Pull(ctx)
	if errors.Is(err, eventqueue.ErrClosed) {
		return protocol.Event{}, io.EOF
	}
	return ev, err
}

// Restart simulates a worker crash and reboot: the current registry loses
// its connection and a new worker announces itself with a fresh ready
// event.
func (l *Link) Restart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.worker.hangup()
	<-l.worker.done
	l.worker = l.boot()
}

// Close stops the worker and ends the event stream.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.worker.hangup()
	<-l.worker.done
	l.events.Close()
	return nil
}

func (w *worker) hangup() {
	select {
	case <-w.gone:
	default:
		close(w.gone)
	}
}

// Recv implements transport.Conn.
func (w *worker) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-w.inbox:
		return data, nil
	case <-w.gone:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send implements transport.Conn.
func (w *worker) Send(_ context.Context, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	decoded, err := protocol.DecodeEvent(data)
	if err != nil {
		return err
	}
	w.sink.Push(decoded)
	return nil
}
