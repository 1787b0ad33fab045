package inmemorystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

// Store is an in-memory implementation of nodestore.Store.
//
// Records live in a map guarded by an RWMutex; a nodeid.Set remembers the
// registration order so callers can seed work deterministically.
type Store struct {
	mu    sync.RWMutex
	nodes map[nodeid.ID]*node.Node
	order *nodeid.Set
}

// New creates a new, empty in-memory node store.
func New() nodestore.Store {
	return &Store{
		nodes: make(map[nodeid.ID]*node.Node),
		order: nodeid.NewSet(),
	}
}

func (s *Store) lookup(id nodeid.ID) (*node.Node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", nodestore.ErrNotFound, id)
	}
	return n, nil
}

// AddNode registers a pending node.
func (s *Store) AddNode(ctx context.Context, id nodeid.ID, input cty.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; exists {
		return false
	}
	s.nodes[id] = node.New(id, input)
	s.order.Add(id)
	return true
}

// RemoveNode deletes the node's record.
func (s *Store) RemoveNode(ctx context.Context, id nodeid.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; !exists {
		return false
	}
	delete(s.nodes, id)
	s.order.Remove(id)
	return true
}

// Has reports whether the node exists.
func (s *Store) Has(ctx context.Context, id nodeid.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.nodes[id]
	return ok
}

// IDs returns all node ids in registration order.
func (s *Store) IDs(ctx context.Context) []nodeid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.order.Slice()
}

// Get returns a copy of the node's record.
func (s *Store) Get(ctx context.Context, id nodeid.ID) (node.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return node.Node{}, false
	}
	return *n, true
}

// SetInput replaces the node's input.
func (s *Store) SetInput(ctx context.Context, id nodeid.ID, input cty.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(id)
	if err != nil {
		return err
	}
	n.Input = input
	return nil
}

// GetInput returns the node's input.
func (s *Store) GetInput(ctx context.Context, id nodeid.ID) (cty.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(id)
	if err != nil {
		return cty.NilVal, err
	}
	return n.Input, nil
}

// SetStatus updates the node's state.
func (s *Store) SetStatus(ctx context.Context, id nodeid.ID, state node.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(id)
	if err != nil {
		return err
	}
	n.State = state
	return nil
}

// GetStatus returns the node's state.
func (s *Store) GetStatus(ctx context.Context, id nodeid.ID) (node.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(id)
	if err != nil {
		return node.Pending, err
	}
	return n.State, nil
}

// SetOutput records the node's output and clears its error.
func (s *Store) SetOutput(ctx context.Context, id nodeid.ID, output cty.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(id)
	if err != nil {
		return err
	}
	n.Output = output
	n.HasOutput = true
	n.Err = nil
	return nil
}

// GetOutput returns the node's last output.
func (s *Store) GetOutput(ctx context.Context, id nodeid.ID) (cty.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(id)
	if err != nil {
		return cty.NilVal, false, err
	}
	return n.Output, n.HasOutput, nil
}

// SetError records the node's failure.
func (s *Store) SetError(ctx context.Context, id nodeid.ID, nodeErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(id)
	if err != nil {
		return err
	}
	n.Err = nodeErr
	return nil
}

// GetError returns the node's recorded failure.
func (s *Store) GetError(ctx context.Context, id nodeid.ID) (error, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return n.Err, nil
}
