// internal/nodeid/types.go
package nodeid

import "sort"

// ID is the host-assigned identifier of a node.
type ID string

// String returns the raw identifier.
func (id ID) String() string {
	return string(id)
}

// Set is an insertion-ordered set of node ids.
type Set struct {
	order []ID
	index map[ID]int
}

// NewSet creates a set holding the given ids in order, skipping duplicates.
func NewSet(ids ...ID) *Set {
	s := &Set{index: make(map[ID]int, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add appends id to the set. It returns false if id was already present.
func (s *Set) Add(id ID) bool {
	if s.index == nil {
		s.index = make(map[ID]int)
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.order)
	s.order = append(s.order, id)
	return true
}

// Remove deletes id from the set, keeping the order of the remaining ids.
func (s *Set) Remove(id ID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	s.order = append(s.order[:i], s.order[i+1:]...)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
	return true
}

// Has reports whether id is in the set.
func (s *Set) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// Slice returns a copy of the ids in insertion order.
func (s *Set) Slice() []ID {
	out := make([]ID, len(s.order))
	copy(out, s.order)
	return out
}

// Sorted returns a lexically sorted copy of ids.
func Sorted(ids []ID) []ID {
	out := make([]ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings converts ids to plain strings, preserving order.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
