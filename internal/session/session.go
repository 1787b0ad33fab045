// Package session defines the core interfaces for creating and managing a
// resolver instance. It abstracts away how an instance is hosted.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/protocol"
)

// ErrDisposed is returned for any operation on a disposed instance.
var ErrDisposed = errors.New("resolver instance disposed")

// State is the lifecycle state of a resolver instance.
type State int32

const (
	// StateUninitialized is the state between creation and the first fixed
	// point.
	StateUninitialized State = iota
	// StateReady means the instance is at a fixed point with no queued
	// commands.
	StateReady
	// StateMutating means commands are queued or being processed.
	StateMutating
	// StateDisposed is terminal.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateMutating:
		return "mutating"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Sink receives the events an instance produces. It reports false once it
// no longer accepts events.
type Sink interface {
	Push(ev protocol.Event) bool
}

// SessionFactory creates resolver instances. Different implementations can
// host instances in-process or elsewhere.
type SessionFactory interface {
	// NewSession creates an instance from a create-resolver command. The
	// instance outlives ctx only as far as ctx allows: cancelling it
	// tears the instance down.
	NewSession(
		ctx context.Context,
		create protocol.Command,
		compute handlers.ComputeFunc,
		sink Sink,
	) (Session, error)
}

// Session is one resolver instance.
type Session interface {
	ID() string
	Type() string
	State() State

	// Submit queues an update-input or delete-input command. It returns an
	// error, leaving the instance unchanged, when the command is invalid
	// for this instance.
	Submit(ctx context.Context, cmd protocol.Command) error

	// WaitIdle blocks until the instance reaches a fixed point with no
	// queued commands.
	WaitIdle(ctx context.Context) error

	// Stop cancels outstanding work and makes every later command fail
	// with ErrDisposed. It does not wait for running computations.
	Stop()

	// Dispose stops the instance and waits until it has shut down. It is
	// idempotent.
	Dispose(ctx context.Context) error
}
