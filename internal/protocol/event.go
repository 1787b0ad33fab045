package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/liveresolver/internal/executor"
	"github.com/specialistvlad/liveresolver/internal/node"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
)

// Event types.
const (
	TypeReady         = "ready"
	TypeResolverReady = "resolver-ready"
	TypeOutputs       = "outputs"
	TypeDependentSet  = "dependent-set"
	TypeRejected      = "rejected"
)

// Output item statuses.
const (
	StatusResolved = "resolved"
	StatusFailed   = "failed"
)

// Event is a worker to host message. Which fields are meaningful depends on
// Type.
type Event struct {
	Type     string `json:"type"`
	WorkerID string `json:"workerId,omitempty"`

	ResolverID string       `json:"resolverId,omitempty"`
	Items      []OutputItem `json:"items,omitempty"`

	// NodeID and Dependents describe a dependent-set event. An empty
	// dependent set is omitted.
	NodeID     string   `json:"nodeId,omitempty"`
	Dependents []string `json:"dependents,omitempty"`

	CommandID string `json:"commandId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// OutputItem reports the outcome of one node.
type OutputItem struct {
	NodeID string      `json:"nodeId"`
	Status string      `json:"status"`
	Output *value.JSON `json:"output,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo describes why a node failed.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Ready announces a (re)booted worker.
func Ready(workerID string) Event {
	return Event{Type: TypeReady, WorkerID: workerID}
}

// ResolverReady announces that an instance reached a fixed point. commandID
// names the last command applied before it, if that command carried one.
func ResolverReady(resolverID, commandID string) Event {
	return Event{Type: TypeResolverReady, ResolverID: resolverID, CommandID: commandID}
}

// Outputs converts a batch of evaluation results into an outputs event.
func Outputs(resolverID string, results []executor.Result) Event {
	items := make([]OutputItem, 0, len(results))
	for _, r := range results {
		item := OutputItem{NodeID: string(r.NodeID)}
		if r.State == node.Resolved {
			item.Status = StatusResolved
			item.Output = &value.JSON{Value: r.Output}
		} else {
			item.Status = StatusFailed
			item.Error = &ErrorInfo{Kind: executor.Kind(r.Err), Message: errorMessage(r.Err)}
		}
		items = append(items, item)
	}
	return Event{Type: TypeOutputs, ResolverID: resolverID, Items: items}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// DependentSet reports the current dependents of a node.
func DependentSet(resolverID string, id nodeid.ID, dependents []nodeid.ID) Event {
	return Event{
		Type:       TypeDependentSet,
		ResolverID: resolverID,
		NodeID:     string(id),
		Dependents: nodeid.Strings(dependents),
	}
}

// Rejected reports a command the worker refused. Instance state is unchanged.
func Rejected(cmd Command, reason error) Event {
	return Event{
		Type:       TypeRejected,
		CommandID:  cmd.CommandID,
		ResolverID: cmd.ResolverID,
		Reason:     reason.Error(),
	}
}

// DecodeEvent parses an event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("invalid event: %w", err)
	}
	switch ev.Type {
	case TypeReady, TypeResolverReady, TypeOutputs, TypeDependentSet, TypeRejected:
		return ev, nil
	default:
		return ev, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
