// Package localsession provides a concrete implementation of the
// session.Session and session.SessionFactory interfaces for in-process
// resolver instances.
//
// Each instance is an actor: one goroutine owns the graph and the executor.
// Commands are queued in a mailbox and cancel the instance's current
// cancellation token on arrival, so in-flight computations abort promptly.
// The actor applies queued commands in arrival order, reprocesses the
// workset, and announces every fixed point with a resolver-ready event.
package localsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/cancelscope"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/executor"
	"github.com/specialistvlad/liveresolver/internal/graph"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/inmemorystore"
	"github.com/specialistvlad/liveresolver/internal/inmemorytopology"
	"github.com/specialistvlad/liveresolver/internal/localexecutor"
	"github.com/specialistvlad/liveresolver/internal/metrics"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/scheduler"
	"github.com/specialistvlad/liveresolver/internal/session"
	"github.com/specialistvlad/liveresolver/internal/value"
)

// SessionFactory implements session.SessionFactory for local instances.
type SessionFactory struct {
	MaxConcurrency int
	Metrics        *metrics.Recorder
}

// NewSession creates, wires and starts a new local instance.
func (f *SessionFactory) NewSession(
	ctx context.Context,
	create protocol.Command,
	compute handlers.ComputeFunc,
	sink session.Sink,
) (session.Session, error) {
	if create.Type != protocol.TypeCreateResolver {
		return nil, fmt.Errorf("%w: cannot create an instance from %s", protocol.ErrInvalidCommand, create.Type)
	}
	if err := create.Validate(); err != nil {
		return nil, err
	}
	ctx = ctxlog.With(ctx, "resolver_id", create.ResolverID, "resolver_type", create.ResolverType)

	s := &Session{
		id:           create.ResolverID,
		resolverType: create.ResolverType,
		sync:         create.SyncDependentMap,
		sink:         sink,
		known:        nodeid.NewSet(),
		mailbox:      []protocol.Command{create},
		wake:         make(chan struct{}, 1),
		settled:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, in := range create.Nodes {
		s.known.Add(in.ID)
	}

	// --- This is where the dependency injection wiring happens ---
	topoStore := inmemorytopology.New()
	nodeStore := inmemorystore.New()
	s.graph = graph.New(topoStore, nodeStore)
	s.scope = cancelscope.New(ctx)
	sched := scheduler.New(s.graph)
	s.exec = localexecutor.New(sched, s.graph, compute, s.scope, s,
		localexecutor.WithMaxConcurrency(f.MaxConcurrency),
		localexecutor.WithMetrics(f.Metrics, create.ResolverType),
	)
	// --- End of dependency injection ---

	go s.run(ctx)
	ctxlog.FromContext(ctx).Info("Resolver instance created.", "nodes", len(create.Nodes), "sync_dependent_map", s.sync)
	return s, nil
}

// Session implements session.Session as a single-goroutine actor.
type Session struct {
	id           string
	resolverType string
	sync         bool
	sink         session.Sink

	// Owned by the actor goroutine.
	graph graph.Graph
	exec  executor.Executor
	scope *cancelscope.Manager

	mu       sync.Mutex
	state    session.State
	disposed bool
	mailbox  []protocol.Command
	known    *nodeid.Set // node ids as of the last accepted command
	settled  chan struct{}

	lastCommandID string // owned by the actor goroutine

	wake chan struct{}
	done chan struct{}
}

// ID returns the host-assigned resolver id.
func (s *Session) ID() string { return s.id }

// Type returns the resolver type the instance was created with.
func (s *Session) Type() string { return s.resolverType }

// State returns the lifecycle state.
func (s *Session) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit implements session.Session.
func (s *Session) Submit(ctx context.Context, cmd protocol.Command) error {
	if cmd.ResolverID != s.id {
		return fmt.Errorf("%w: command for %q sent to %q", protocol.ErrInvalidCommand, cmd.ResolverID, s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return session.ErrDisposed
	}

	id := nodeid.ID(cmd.NodeID)
	switch cmd.Type {
	case protocol.TypeUpdateInput:
		s.known.Add(id)
	case protocol.TypeDeleteInput:
		if !s.known.Has(id) {
			return fmt.Errorf("cannot delete %q: %w", id, graph.ErrNodeNotFound)
		}
		s.known.Remove(id)
	default:
		return fmt.Errorf("%w: %s cannot be submitted to an instance", protocol.ErrInvalidCommand, cmd.Type)
	}

	s.mailbox = append(s.mailbox, cmd)
	if s.state == session.StateReady {
		s.state = session.StateMutating
		s.settled = make(chan struct{})
	}
	s.scope.Cancel()
	s.signal()
	ctxlog.FromContext(ctx).Debug("Command queued.", "resolver_id", s.id, "command", cmd.Type, "node_id", id)
	return nil
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WaitIdle implements session.Session.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	settled, disposed := s.settled, s.disposed
	s.mu.Unlock()
	if disposed {
		return session.ErrDisposed
	}

	select {
	case <-settled:
		return nil
	case <-s.done:
		return session.ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements session.Session.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.disposed {
		s.disposed = true
		s.state = session.StateDisposed
		s.mailbox = nil
	}
	s.mu.Unlock()

	s.scope.Close()
	s.signal()
}

// Dispose implements session.Session.
func (s *Session) Dispose(ctx context.Context) error {
	s.Stop()

	select {
	case <-s.done:
		ctxlog.FromContext(ctx).Debug("Resolver instance disposed.", "resolver_id", s.id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// takeMailbox drains the queued commands. It reports false once disposed.
func (s *Session) takeMailbox() ([]protocol.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, false
	}
	cmds := s.mailbox
	s.mailbox = nil
	return cmds, true
}

// begin returns the token for the next Process run. It reports false when
// commands arrived while the previous batch was applied: their intake
// cancellation may have been overwritten by an Invalidate renewal.
func (s *Session) begin() (*cancelscope.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || len(s.mailbox) > 0 {
		return nil, false
	}
	token := s.scope.Current()
	if !token.Live() {
		token = s.scope.Renew()
	}
	return token, true
}

// settle records a fixed point and announces it with a resolver-ready
// event. It reports false when more commands are waiting.
func (s *Session) settle(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || len(s.mailbox) > 0 {
		return false
	}
	if s.state != session.StateReady {
		s.state = session.StateReady
		s.sink.Push(protocol.ResolverReady(s.id, s.lastCommandID))
		close(s.settled)
		ctxlog.FromContext(ctx).Debug("Resolver instance reached a fixed point.")
	}
	return true
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	logger := ctxlog.FromContext(ctx)

	for {
		cmds, ok := s.takeMailbox()
		if !ok {
			return
		}
		for _, cmd := range cmds {
			s.apply(ctx, cmd)
			if cmd.CommandID != "" {
				s.lastCommandID = cmd.CommandID
			}
		}

		token, ok := s.begin()
		if !ok {
			continue
		}
		err := s.exec.Process(ctx, token)
		if errors.Is(err, executor.ErrCancelled) {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if err != nil {
			logger.Error("Processing failed.", "error", err)
		}

		if !s.settle(ctx) {
			continue
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}

// apply mutates the graph for one command and invalidates what it affects.
func (s *Session) apply(ctx context.Context, cmd protocol.Command) {
	logger := ctxlog.FromContext(ctx)

	switch cmd.Type {
	case protocol.TypeCreateResolver:
		for _, in := range cmd.Nodes {
			if _, err := s.graph.Set(ctx, in.ID, in.Input); err != nil {
				logger.Error("Failed to register node.", "node_id", in.ID, "error", err)
			}
		}
		s.exec.AddAllToWorkset(ctx)

	case protocol.TypeUpdateInput:
		id := nodeid.ID(cmd.NodeID)
		input := cmd.Input()
		if n, ok := s.graph.Node(ctx, id); ok && value.Equal(n.Input, input) &&
			(n.State == node.Resolved || s.exec.Queued(id)) {
			logger.Debug("Identical input ignored.", "node_id", id)
			return
		}
		affected, err := s.graph.Set(ctx, id, input)
		if err != nil {
			logger.Error("Failed to update node.", "node_id", id, "error", err)
			return
		}
		s.exec.Invalidate(ctx, affected...)

	case protocol.TypeDeleteInput:
		id := nodeid.ID(cmd.NodeID)
		affected, err := s.graph.Delete(ctx, id)
		if err != nil {
			logger.Warn("Delete of unknown node ignored.", "node_id", id, "error", err)
			return
		}
		s.exec.Invalidate(ctx, affected...)
	}
}

// EmitOutputs implements executor.Emitter.
func (s *Session) EmitOutputs(_ context.Context, results []executor.Result) {
	s.sink.Push(protocol.Outputs(s.id, results))
}

// EmitDependents implements executor.Emitter.
func (s *Session) EmitDependents(_ context.Context, id nodeid.ID, dependents []nodeid.ID) {
	if !s.sync {
		return
	}
	s.sink.Push(protocol.DependentSet(s.id, id, dependents))
}
