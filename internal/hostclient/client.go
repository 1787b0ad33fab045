package hostclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrUnknownInstance is returned for a resolver id the client never
	// created or already disposed.
	ErrUnknownInstance = errors.New("unknown resolver instance")
	// ErrStopped is returned by waits once Run has returned.
	ErrStopped = errors.New("host client stopped")
)

// Conn is the host end of a worker connection.
type Conn interface {
	Send(ctx context.Context, cmd protocol.Command) error
	// Next blocks for the next event. io.EOF reports a closed connection.
	Next(ctx context.Context) (protocol.Event, error)
	Close() error
}

// Output is the latest result the worker streamed for a node.
type Output struct {
	Status string
	Value  cty.Value
	Err    *protocol.ErrorInfo
}

// Resolved reports whether the node resolved successfully.
func (o Output) Resolved() bool {
	return o.Status == protocol.StatusResolved
}

type instance struct {
	id           string
	resolverType string
	sync         bool

	order  []nodeid.ID
	inputs map[nodeid.ID]cty.Value

	outputs    map[nodeid.ID]Output
	dependents map[nodeid.ID][]nodeid.ID

	// pending holds the sequence numbers of commands not yet acknowledged.
	pending  map[uint64]struct{}
	rejected error
}

func newInstance(id, resolverType string, sync bool) *instance {
	return &instance{
		id:           id,
		resolverType: resolverType,
		sync:         sync,
		inputs:       make(map[nodeid.ID]cty.Value),
		outputs:      make(map[nodeid.ID]Output),
		dependents:   make(map[nodeid.ID][]nodeid.ID),
		pending:      make(map[uint64]struct{}),
	}
}

func (in *instance) set(id nodeid.ID, v cty.Value) {
	if _, ok := in.inputs[id]; !ok {
		in.order = append(in.order, id)
	}
	in.inputs[id] = v
}

func (in *instance) remove(id nodeid.ID) {
	if _, ok := in.inputs[id]; !ok {
		return
	}
	delete(in.inputs, id)
	delete(in.outputs, id)
	delete(in.dependents, id)
	for i, o := range in.order {
		if o == id {
			in.order = append(in.order[:i], in.order[i+1:]...)
			break
		}
	}
}

func (in *instance) nodes() protocol.NodeInputs {
	out := make(protocol.NodeInputs, 0, len(in.order))
	for _, id := range in.order {
		out = append(out, protocol.NodeInput{ID: id, Input: in.inputs[id]})
	}
	return out
}

// Option configures a Client.
type Option func(*Client)

// WithObserver registers fn to see every event after the client applied it.
func WithObserver(fn func(protocol.Event)) Option {
	return func(c *Client) {
		c.observers = append(c.observers, fn)
	}
}

// Client tracks resolver instances on behalf of a host.
type Client struct {
	conn      Conn
	session   string
	observers []func(protocol.Event)

	mu         sync.Mutex
	changed    chan struct{}
	seq        uint64
	commands   map[string]uint64
	instances  map[string]*instance
	workerID   string
	restarts   int
	rejections []protocol.Event
	stopped    error
}

// New creates a client over conn. Call Run to start consuming events.
func New(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:      conn,
		session:   uuid.NewString(),
		changed:   make(chan struct{}),
		commands:  make(map[string]uint64),
		instances: make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes events until the connection closes or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for {
		ev, err := c.conn.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.stop(err)
			logger.Debug("Host client stopped.", "error", err)
			return err
		}
		recreate := c.apply(ctx, ev)
		for _, cmd := range recreate {
			if err := c.conn.Send(ctx, cmd); err != nil {
				logger.Error("Failed to re-create resolver.", "resolver_id", cmd.ResolverID, "error", err)
			}
		}
		for _, fn := range c.observers {
			fn(ev)
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) stop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrStopped
	}
	c.stopped = err
	c.broadcastLocked()
}

func (c *Client) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// nextCommandLocked assigns a command id and registers it as pending for
// the instance.
func (c *Client) nextCommandLocked(in *instance, cmd *protocol.Command) {
	c.seq++
	cmd.CommandID = c.session + "-" + strconv.FormatUint(c.seq, 10)
	c.commands[cmd.CommandID] = c.seq
	in.pending[c.seq] = struct{}{}
}

// apply folds an event into the client state. It returns the commands
// needed to re-create retained instances on a restarted worker.
func (c *Client) apply(ctx context.Context, ev protocol.Event) []protocol.Command {
	logger := ctxlog.FromContext(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.broadcastLocked()

	switch ev.Type {
	case protocol.TypeReady:
		first := c.workerID == ""
		c.workerID = ev.WorkerID
		if first {
			logger.Info("Worker ready.", "worker_id", ev.WorkerID)
			return nil
		}
		c.restarts++
		logger.Info("Worker restarted, re-creating resolvers.", "worker_id", ev.WorkerID, "resolvers", len(c.instances))
		var out []protocol.Command
		for _, id := range sortedKeys(c.instances) {
			in := c.instances[id]
			in.pending = make(map[uint64]struct{})
			in.rejected = nil
			cmd := protocol.CreateResolver(in.id, in.resolverType, in.nodes(), in.sync)
			c.nextCommandLocked(in, &cmd)
			out = append(out, cmd)
		}
		return out

	case protocol.TypeResolverReady:
		in, ok := c.instances[ev.ResolverID]
		if !ok {
			return nil
		}
		seq, ok := c.commands[ev.CommandID]
		if !ok {
			return nil
		}
		for s := range in.pending {
			if s <= seq {
				delete(in.pending, s)
			}
		}

	case protocol.TypeOutputs:
		in, ok := c.instances[ev.ResolverID]
		if !ok {
			return nil
		}
		for _, item := range ev.Items {
			id := nodeid.ID(item.NodeID)
			if _, known := in.inputs[id]; !known {
				continue
			}
			out := Output{Status: item.Status, Err: item.Error}
			if item.Output != nil {
				out.Value = item.Output.Value
			}
			in.outputs[id] = out
		}

	case protocol.TypeDependentSet:
		in, ok := c.instances[ev.ResolverID]
		if !ok {
			return nil
		}
		dependents := make([]nodeid.ID, 0, len(ev.Dependents))
		for _, d := range ev.Dependents {
			dependents = append(dependents, nodeid.ID(d))
		}
		in.dependents[nodeid.ID(ev.NodeID)] = dependents

	case protocol.TypeRejected:
		logger.Warn("Command rejected by worker.", "command_id", ev.CommandID, "resolver_id", ev.ResolverID, "reason", ev.Reason)
		c.rejections = append(c.rejections, ev)
		seq, ok := c.commands[ev.CommandID]
		if !ok {
			return nil
		}
		if in, ok := c.instances[ev.ResolverID]; ok {
			if _, waiting := in.pending[seq]; waiting {
				delete(in.pending, seq)
				in.rejected = fmt.Errorf("command %s rejected: %s", ev.CommandID, ev.Reason)
			}
		}
	}
	return nil
}

// Create registers a new instance and sends create-resolver.
func (c *Client) Create(ctx context.Context, resolverID, resolverType string, nodes protocol.NodeInputs, syncDependentMap bool) error {
	c.mu.Lock()
	if _, ok := c.instances[resolverID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("resolver %q already exists", resolverID)
	}
	in := newInstance(resolverID, resolverType, syncDependentMap)
	for _, n := range nodes {
		in.set(n.ID, n.Input)
	}
	c.instances[resolverID] = in
	cmd := protocol.CreateResolver(resolverID, resolverType, in.nodes(), syncDependentMap)
	c.nextCommandLocked(in, &cmd)
	c.mu.Unlock()

	return c.conn.Send(ctx, cmd)
}

// Update sets the input of a node, creating it when new.
func (c *Client) Update(ctx context.Context, resolverID string, id nodeid.ID, input cty.Value) error {
	cmd := protocol.UpdateInput(resolverID, id, input)
	err := c.mutate(resolverID, &cmd, func(in *instance) { in.set(id, input) })
	if err != nil {
		return err
	}
	return c.conn.Send(ctx, cmd)
}

// Delete removes a node.
func (c *Client) Delete(ctx context.Context, resolverID string, id nodeid.ID) error {
	cmd := protocol.DeleteInput(resolverID, id)
	err := c.mutate(resolverID, &cmd, func(in *instance) { in.remove(id) })
	if err != nil {
		return err
	}
	return c.conn.Send(ctx, cmd)
}

// Dispose forgets an instance and tells the worker to drop it.
func (c *Client) Dispose(ctx context.Context, resolverID string) error {
	c.mu.Lock()
	if _, ok := c.instances[resolverID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w %q", ErrUnknownInstance, resolverID)
	}
	delete(c.instances, resolverID)
	c.broadcastLocked()
	c.mu.Unlock()

	return c.conn.Send(ctx, protocol.DisposeResolver(resolverID))
}

func (c *Client) mutate(resolverID string, cmd *protocol.Command, fn func(*instance)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instances[resolverID]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownInstance, resolverID)
	}
	fn(in)
	c.nextCommandLocked(in, cmd)
	return nil
}

// WaitReady blocks until every command sent for the instance has been
// acknowledged. It returns the rejection reason when one of them was
// rejected.
func (c *Client) WaitReady(ctx context.Context, resolverID string) error {
	for {
		c.mu.Lock()
		in, ok := c.instances[resolverID]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w %q", ErrUnknownInstance, resolverID)
		}
		if len(in.pending) == 0 {
			err := in.rejected
			in.rejected = nil
			c.mu.Unlock()
			return err
		}
		if c.stopped != nil {
			err := c.stopped
			c.mu.Unlock()
			return err
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitWorker blocks until the worker has announced itself.
func (c *Client) WaitWorker(ctx context.Context) (string, error) {
	for {
		c.mu.Lock()
		id, stopped, changed := c.workerID, c.stopped, c.changed
		c.mu.Unlock()
		if id != "" {
			return id, nil
		}
		if stopped != nil {
			return "", stopped
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Output returns the latest output streamed for a node.
func (c *Client) Output(resolverID string, id nodeid.ID) (Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instances[resolverID]
	if !ok {
		return Output{}, false
	}
	out, ok := in.outputs[id]
	return out, ok
}

// Outputs returns a copy of the latest outputs of an instance.
func (c *Client) Outputs(resolverID string) map[nodeid.ID]Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instances[resolverID]
	if !ok {
		return nil
	}
	out := make(map[nodeid.ID]Output, len(in.outputs))
	for id, o := range in.outputs {
		out[id] = o
	}
	return out
}

// Nodes returns the node ids of an instance in the order they were added.
func (c *Client) Nodes(resolverID string) []nodeid.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instances[resolverID]
	if !ok {
		return nil
	}
	return append([]nodeid.ID(nil), in.order...)
}

// Dependents returns the last dependent set the worker reported for a
// node. Only instances created with syncDependentMap receive them.
func (c *Client) Dependents(resolverID string, id nodeid.ID) ([]nodeid.ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.instances[resolverID]
	if !ok {
		return nil, false
	}
	d, ok := in.dependents[id]
	return append([]nodeid.ID(nil), d...), ok
}

// Instances returns the retained resolver ids, sorted.
func (c *Client) Instances() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.instances)
}

// Rejections returns every rejected event seen so far.
func (c *Client) Rejections() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.rejections...)
}

// WorkerID returns the id of the worker last announced.
func (c *Client) WorkerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workerID
}

// Restarts counts worker restarts observed after the first ready event.
func (c *Client) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

func sortedKeys(m map[string]*instance) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
