package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/errwrap"
	"github.com/specialistvlad/liveresolver/internal/eventqueue"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/metrics"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/session"
)

var (
	// ErrUnknownResolver is returned for a command naming a resolver id
	// that does not exist on this connection.
	ErrUnknownResolver = errors.New("unknown resolver")
	// ErrUnknownResolverType is returned for a create-resolver naming a
	// resolver type with no registered compute function.
	ErrUnknownResolverType = errors.New("unknown resolver type")
	// ErrClosed is returned once the registry has been closed.
	ErrClosed = errors.New("registry closed")
)

// Registry holds the resolver instances of a single connection.
type Registry struct {
	handlers *handlers.Handlers
	factory  session.SessionFactory
	events   *eventqueue.Queue
	metrics  *metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]session.Session
	disposed map[string]struct{}
	closed   bool
	workerID string

	// stopping tracks disposed instances whose computations are still
	// winding down.
	stopping sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics reports commands and instance counts to rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(r *Registry) { r.metrics = rec }
}

// New creates a registry. Instances live at most as long as ctx.
func New(ctx context.Context, hndls *handlers.Handlers, factory session.SessionFactory, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		handlers: hndls,
		factory:  factory,
		events:   eventqueue.New(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]session.Session),
		disposed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the queue carrying every event of this registry.
func (r *Registry) Events() *eventqueue.Queue {
	return r.events
}

// Boot announces the worker to the host with a fresh worker id. The host
// answers by recreating every instance it still needs.
func (r *Registry) Boot(ctx context.Context) string {
	r.mu.Lock()
	r.workerID = uuid.NewString()
	id := r.workerID
	r.mu.Unlock()

	r.events.Push(protocol.Ready(id))
	ctxlog.FromContext(ctx).Info("Worker ready.", "worker_id", id)
	return id
}

// WorkerID returns the id announced by the last Boot.
func (r *Registry) WorkerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workerID
}

// HandleRaw decodes and handles one command. Undecodable commands are
// rejected like any other invalid command.
func (r *Registry) HandleRaw(ctx context.Context, data []byte) error {
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		return r.reject(ctx, cmd, err)
	}
	return r.Handle(ctx, cmd)
}

// Handle routes one command. A rejected command produces a rejected event
// and the rejection error is returned; the registry and its instances are
// left unchanged.
func (r *Registry) Handle(ctx context.Context, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return r.reject(ctx, cmd, err)
	}
	ctx = ctxlog.With(ctx, "resolver_id", cmd.ResolverID, "command", cmd.Type)

	switch cmd.Type {
	case protocol.TypeCreateResolver:
		return r.create(ctx, cmd)
	case protocol.TypeDisposeResolver:
		return r.dispose(ctx, cmd)
	default:
		s, err := r.lookup(cmd.ResolverID)
		if err != nil {
			return r.reject(ctx, cmd, err)
		}
		if err := s.Submit(ctx, cmd); err != nil {
			if errors.Is(err, session.ErrDisposed) {
				err = fmt.Errorf("%w %q: %v", ErrUnknownResolver, cmd.ResolverID, err)
			}
			return r.reject(ctx, cmd, err)
		}
		r.metrics.Command(cmd.Type, metrics.ResultAccepted)
		return nil
	}
}

func (r *Registry) create(ctx context.Context, cmd protocol.Command) error {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.rejectLocked(ctx, cmd, ErrClosed)
	}
	if _, exists := r.sessions[cmd.ResolverID]; exists {
		logger.Warn("Resolver already exists, ignoring create.", "resolver_type", cmd.ResolverType)
		r.metrics.Command(cmd.Type, metrics.ResultIgnored)
		return nil
	}
	if _, gone := r.disposed[cmd.ResolverID]; gone {
		return r.rejectLocked(ctx, cmd, fmt.Errorf("resolver %q: %w", cmd.ResolverID, session.ErrDisposed))
	}
	h, ok := r.handlers.Get(cmd.ResolverType)
	if !ok {
		return r.rejectLocked(ctx, cmd, fmt.Errorf("%w %q", ErrUnknownResolverType, cmd.ResolverType))
	}

	s, err := r.factory.NewSession(r.ctx, cmd, h.Fn, r.events)
	if err != nil {
		return r.rejectLocked(ctx, cmd, err)
	}
	r.sessions[cmd.ResolverID] = s
	r.metrics.Command(cmd.Type, metrics.ResultAccepted)
	r.metrics.ResolverCreated()
	return nil
}

func (r *Registry) dispose(ctx context.Context, cmd protocol.Command) error {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	s, ok := r.sessions[cmd.ResolverID]
	if ok {
		delete(r.sessions, cmd.ResolverID)
		r.disposed[cmd.ResolverID] = struct{}{}
		// Close waits on stopping only after closed is set under mu.
		r.stopping.Add(1)
	}
	r.mu.Unlock()

	if !ok {
		return r.reject(ctx, cmd, fmt.Errorf("%w %q", ErrUnknownResolver, cmd.ResolverID))
	}
	r.metrics.Command(cmd.Type, metrics.ResultAccepted)
	r.metrics.ResolverDisposed()
	logger.Info("Disposing resolver.")

	// A compute function ignoring its token must not hold up the other
	// instances of this connection.
	s.Stop()
	go func() {
		defer r.stopping.Done()
		if err := s.Dispose(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to dispose resolver.", "error", err)
			return
		}
		logger.Debug("Resolver instance stopped.")
	}()
	return nil
}

func (r *Registry) lookup(resolverID string) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	s, ok := r.sessions[resolverID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownResolver, resolverID)
	}
	return s, nil
}

func (r *Registry) reject(ctx context.Context, cmd protocol.Command, reason error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejectLocked(ctx, cmd, reason)
}

func (r *Registry) rejectLocked(ctx context.Context, cmd protocol.Command, reason error) error {
	ctxlog.FromContext(ctx).Warn("Command rejected.", "command", cmd.Type, "command_id", cmd.CommandID, "reason", reason)
	r.metrics.Command(commandLabel(cmd.Type), metrics.ResultRejected)
	r.events.Push(protocol.Rejected(cmd, reason))
	return reason
}

// commandLabel keeps metric cardinality bounded for garbage command types.
func commandLabel(typ string) string {
	switch typ {
	case protocol.TypeCreateResolver, protocol.TypeUpdateInput, protocol.TypeDeleteInput, protocol.TypeDisposeResolver:
		return typ
	default:
		return "unknown"
	}
}

// Session returns the live instance for resolverID.
func (r *Registry) Session(resolverID string) (session.Session, bool) {
	s, err := r.lookup(resolverID)
	return s, err == nil
}

// ResolverIDs returns the ids of all live instances, sorted.
func (r *Registry) ResolverIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WaitIdle blocks until the instance reaches a fixed point.
func (r *Registry) WaitIdle(ctx context.Context, resolverID string) error {
	s, err := r.lookup(resolverID)
	if err != nil {
		return err
	}
	return s.WaitIdle(ctx)
}

// Close disposes every instance and closes the event queue. It is the
// transport loss path and may be called any number of times.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]session.Session)
	r.mu.Unlock()

	var errs error
	for id, s := range sessions {
		if err := s.Dispose(ctx); err != nil {
			errs = errwrap.Append(errs, errwrap.Wrapf(err, "dispose %s", id))
		}
		r.metrics.ResolverDisposed()
	}
	r.stopping.Wait()
	r.cancel()
	r.events.Close()
	ctxlog.FromContext(ctx).Info("Registry closed.", "disposed", len(sessions))
	return errs
}
