package inmemorytopology

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/topologystore"
)

type idSet map[nodeid.ID]struct{}

func (s idSet) sorted() []nodeid.ID {
	out := make([]nodeid.ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return nodeid.Sorted(out)
}

// Store implements the topologystore.Store interface using maps and a mutex
// for thread-safe concurrent access.
type Store struct {
	mu         sync.RWMutex
	nodes      idSet
	deps       map[nodeid.ID]idSet // Key: node, Value: registered nodes it references
	dependents map[nodeid.ID]idSet // Key: node, Value: registered nodes referencing it
	missing    map[nodeid.ID]idSet // Key: node, Value: unregistered ids it references
	referrers  map[nodeid.ID]idSet // Key: unregistered id, Value: nodes referencing it
}

// New creates a new, empty in-memory topology store.
func New() topologystore.Store {
	return &Store{
		nodes:      make(idSet),
		deps:       make(map[nodeid.ID]idSet),
		dependents: make(map[nodeid.ID]idSet),
		missing:    make(map[nodeid.ID]idSet),
		referrers:  make(map[nodeid.ID]idSet),
	}
}

func link(m map[nodeid.ID]idSet, from, to nodeid.ID) {
	if m[from] == nil {
		m[from] = make(idSet)
	}
	m[from][to] = struct{}{}
}

func unlink(m map[nodeid.ID]idSet, from, to nodeid.ID) {
	set, ok := m[from]
	if !ok {
		return
	}
	delete(set, to)
	if len(set) == 0 {
		delete(m, from)
	}
}

// AddNode registers id and promotes absent references to it.
func (s *Store) AddNode(ctx context.Context, id nodeid.ID) []nodeid.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; exists {
		return nil
	}
	s.nodes[id] = struct{}{}

	promoted := s.referrers[id].sorted()
	for _, ref := range promoted {
		unlink(s.missing, ref, id)
		link(s.deps, ref, id)
		link(s.dependents, id, ref)
	}
	delete(s.referrers, id)
	return promoted
}

// RemoveNode unregisters id.
func (s *Store) RemoveNode(ctx context.Context, id nodeid.ID) ([]nodeid.ID, []nodeid.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; !exists {
		return nil, nil, fmt.Errorf("node %q not found in topology", id)
	}

	former := s.deps[id].sorted()
	for _, dep := range former {
		unlink(s.dependents, dep, id)
	}
	delete(s.deps, id)
	for miss := range s.missing[id] {
		unlink(s.referrers, miss, id)
	}
	delete(s.missing, id)

	var dependents []nodeid.ID
	for _, d := range s.dependents[id].sorted() {
		if d == id {
			continue
		}
		unlink(s.deps, d, id)
		link(s.missing, d, id)
		link(s.referrers, id, d)
		dependents = append(dependents, d)
	}
	delete(s.dependents, id)
	delete(s.nodes, id)

	var dependencies []nodeid.ID
	for _, dep := range former {
		if dep != id {
			dependencies = append(dependencies, dep)
		}
	}
	return dependents, dependencies, nil
}

// HasNode reports whether id is registered.
func (s *Store) HasNode(ctx context.Context, id nodeid.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.nodes[id]
	return ok
}

// SetDependencies replaces the references held by id.
func (s *Store) SetDependencies(ctx context.Context, id nodeid.ID, refs []nodeid.ID) ([]nodeid.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; !exists {
		return nil, fmt.Errorf("node %q not found in topology", id)
	}

	wantDeps := make(idSet)
	wantMissing := make(idSet)
	for _, ref := range refs {
		if _, ok := s.nodes[ref]; ok {
			wantDeps[ref] = struct{}{}
		} else {
			wantMissing[ref] = struct{}{}
		}
	}

	changed := make(idSet)
	for dep := range s.deps[id] {
		if _, keep := wantDeps[dep]; !keep {
			unlink(s.deps, id, dep)
			unlink(s.dependents, dep, id)
			changed[dep] = struct{}{}
		}
	}
	for dep := range wantDeps {
		if _, has := s.deps[id][dep]; !has {
			link(s.deps, id, dep)
			link(s.dependents, dep, id)
			changed[dep] = struct{}{}
		}
	}

	for miss := range s.missing[id] {
		if _, keep := wantMissing[miss]; !keep {
			unlink(s.missing, id, miss)
			unlink(s.referrers, miss, id)
		}
	}
	for miss := range wantMissing {
		link(s.missing, id, miss)
		link(s.referrers, miss, id)
	}

	return changed.sorted(), nil
}

// DependenciesOf returns the nodes id depends on.
func (s *Store) DependenciesOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.nodes[id]; !exists {
		return nil, fmt.Errorf("node %q not found in topology", id)
	}
	return s.deps[id].sorted(), nil
}

// DependentsOf returns the nodes that depend on id.
func (s *Store) DependentsOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.nodes[id]; !exists {
		return nil, fmt.Errorf("node %q not found in topology", id)
	}
	return s.dependents[id].sorted(), nil
}

// MissingOf returns the unregistered ids id references.
func (s *Store) MissingOf(ctx context.Context, id nodeid.ID) ([]nodeid.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.nodes[id]; !exists {
		return nil, fmt.Errorf("node %q not found in topology", id)
	}
	return s.missing[id].sorted(), nil
}

// Consistent checks that both adjacency directions and both absent-reference
// directions mirror each other and only mention registered nodes.
func (s *Store) Consistent(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := transposed(s.deps, s.dependents, "dependency", "dependents"); err != nil {
		return err
	}
	if err := transposed(s.missing, s.referrers, "absent reference", "referrers"); err != nil {
		return err
	}
	for from, tos := range s.deps {
		if _, ok := s.nodes[from]; !ok {
			return fmt.Errorf("edge source %q is not registered", from)
		}
		for to := range tos {
			if _, ok := s.nodes[to]; !ok {
				return fmt.Errorf("edge %q -> %q targets an unregistered node", from, to)
			}
		}
	}
	for miss := range s.referrers {
		if _, ok := s.nodes[miss]; ok {
			return fmt.Errorf("absent reference to %q but the node is registered", miss)
		}
	}
	return nil
}

func transposed(forward, reverse map[nodeid.ID]idSet, fwdName, revName string) error {
	count := 0
	for from, tos := range forward {
		for to := range tos {
			if _, ok := reverse[to][from]; !ok {
				return fmt.Errorf("%s %q -> %q missing from %s", fwdName, from, to, revName)
			}
			count++
		}
	}
	for _, froms := range reverse {
		count -= len(froms)
	}
	if count != 0 {
		return fmt.Errorf("%s holds entries without a matching %s", revName, fwdName)
	}
	return nil
}
