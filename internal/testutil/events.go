package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/zclconf/go-cty/cty"
)

// WaitTimeout bounds every wait in the helpers of this package.
const WaitTimeout = 5 * time.Second

// EventLog is a session.Sink that records every event.
type EventLog struct {
	mu     sync.Mutex
	events []protocol.Event
	closed bool
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Push records ev.
func (l *EventLog) Push(ev protocol.Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.events = append(l.events, ev)
	return true
}

// Close makes further pushes fail.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// Events returns a copy of everything recorded.
func (l *EventLog) Events() []protocol.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Event(nil), l.events...)
}

// OfType returns the recorded events of the given type.
func (l *EventLog) OfType(typ string) []protocol.Event {
	var out []protocol.Event
	for _, ev := range l.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Items returns every output item recorded for a node of a resolver, in
// order.
func (l *EventLog) Items(resolverID, nodeID string) []protocol.OutputItem {
	var out []protocol.OutputItem
	for _, ev := range l.OfType(protocol.TypeOutputs) {
		if ev.ResolverID != resolverID {
			continue
		}
		for _, item := range ev.Items {
			if item.NodeID == nodeID {
				out = append(out, item)
			}
		}
	}
	return out
}

// Outputs returns the resolved output values recorded for a node of a
// resolver, in order.
func (l *EventLog) Outputs(resolverID, nodeID string) []cty.Value {
	var out []cty.Value
	for _, item := range l.Items(resolverID, nodeID) {
		if item.Status == protocol.StatusResolved && item.Output != nil {
			out = append(out, item.Output.Value)
		}
	}
	return out
}

// WaitFor blocks until an event matching pred is recorded and returns it.
func (l *EventLog) WaitFor(t *testing.T, pred func(protocol.Event) bool) protocol.Event {
	t.Helper()
	deadline := time.Now().Add(WaitTimeout)
	for time.Now().Before(deadline) {
		for _, ev := range l.Events() {
			if pred(ev) {
				return ev
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no matching event within %s; recorded: %+v", WaitTimeout, l.Events())
	return protocol.Event{}
}

// IsType matches events of the given type, optionally for one resolver.
func IsType(typ string, resolverID ...string) func(protocol.Event) bool {
	return func(ev protocol.Event) bool {
		if ev.Type != typ {
			return false
		}
		return len(resolverID) == 0 || ev.ResolverID == resolverID[0]
	}
}
