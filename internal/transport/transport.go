// Package transport connects a registry to a host.
//
// A transport only moves bytes: it feeds raw commands to the connection's
// registry and delivers the registry's events to the host in queue order.
// Concrete transports live in subpackages (stdio, socketio, inproc); they
// all run a connection through Serve.
package transport

import (
	"context"
	"errors"
	"io"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/eventqueue"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Conn is one host connection as seen by the worker.
type Conn interface {
	// Recv blocks for the next raw command. io.EOF reports that the host
	// is gone.
	Recv(ctx context.Context) ([]byte, error)
	// Send delivers one event to the host.
	Send(ctx context.Context, ev protocol.Event) error
}

// RegistryFactory creates the registry for a new connection.
type RegistryFactory func(ctx context.Context) *registry.Registry

// Serve runs a connection until the host goes away or ctx is done. It
// announces the worker, routes every command to reg and forwards every
// event. On return reg is closed and its instances disposed.
func Serve(ctx context.Context, conn Conn, reg *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	reg.Boot(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return Forward(gctx, reg.Events(), func(ev protocol.Event) error {
			return conn.Send(gctx, ev)
		})
	})
	g.Go(func() error {
		defer func() {
			if err := reg.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to close registry.", "error", err)
			}
		}()
		for {
			data, err := conn.Recv(gctx)
			if errors.Is(err, io.EOF) {
				logger.Info("Host disconnected.")
				return nil
			}
			if err != nil {
				return err
			}
			if err := reg.HandleRaw(gctx, data); err != nil {
				logger.Debug("Command not applied.", "error", err)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Forward delivers queued events to send until the queue is closed and
// drained.
func Forward(ctx context.Context, events *eventqueue.Queue, send func(protocol.Event) error) error {
	for {
		ev, err := events.Pull(ctx)
		if errors.Is(err, eventqueue.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := send(ev); err != nil {
			return err
		}
	}
}
