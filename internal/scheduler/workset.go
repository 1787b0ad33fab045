package scheduler

import "github.com/specialistvlad/liveresolver/internal/nodeid"

// Workset is the insertion-ordered set of node ids awaiting (re)computation.
// Adding an id that is already queued keeps its original position.
//
// A Workset is not safe for concurrent use; it belongs to the instance
// goroutine.
type Workset struct {
	ids *nodeid.Set
}

// NewWorkset creates an empty workset.
func NewWorkset() *Workset {
	return &Workset{ids: nodeid.NewSet()}
}

// Add queues ids and returns how many were not queued before.
func (w *Workset) Add(ids ...nodeid.ID) int {
	added := 0
	for _, id := range ids {
		if w.ids.Add(id) {
			added++
		}
	}
	return added
}

// Remove dequeues id.
func (w *Workset) Remove(id nodeid.ID) bool {
	return w.ids.Remove(id)
}

// Has reports whether id is queued.
func (w *Workset) Has(id nodeid.ID) bool {
	return w.ids.Has(id)
}

// Len returns the number of queued ids.
func (w *Workset) Len() int {
	return w.ids.Len()
}

// IDs returns the queued ids in insertion order.
func (w *Workset) IDs() []nodeid.ID {
	return w.ids.Slice()
}
