package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Command types.
const (
	TypeCreateResolver  = "create-resolver"
	TypeUpdateInput     = "update-input"
	TypeDeleteInput     = "delete-input"
	TypeDisposeResolver = "dispose-resolver"
)

var (
	// ErrUnknownCommand is returned for a command type the worker does not
	// understand.
	ErrUnknownCommand = errors.New("unknown command type")
	// ErrInvalidCommand is returned for a command missing a required field.
	ErrInvalidCommand = errors.New("invalid command")
)

// Command is a host to worker message. Which fields are meaningful depends
// on Type.
type Command struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId,omitempty"`

	ResolverID       string     `json:"resolverId"`
	ResolverType     string     `json:"resolverType,omitempty"`
	Nodes            NodeInputs `json:"nodes,omitempty"`
	SyncDependentMap bool       `json:"syncDependentMap,omitempty"`

	NodeID string     `json:"nodeId,omitempty"`
	Value  value.JSON `json:"value,omitzero"`
}

// NodeInput is one entry of a create-resolver snapshot.
type NodeInput struct {
	ID    nodeid.ID
	Input cty.Value
}

// NodeInputs is a node snapshot. On the wire it is an object keyed by node
// id; key order is preserved.
type NodeInputs []NodeInput

// MarshalJSON implements json.Marshaler.
func (n NodeInputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, in := range n {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(in.ID))
		if err != nil {
			return nil, err
		}
		val, err := value.Encode(in.Input)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", in.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NodeInputs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*n = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("nodes must be an object, got %v", tok)
	}

	var out NodeInputs
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("node %q: %w", key, err)
		}
		id, err := nodeid.Parse(key)
		if err != nil {
			return err
		}
		input, err := value.Decode(raw)
		if err != nil {
			return fmt.Errorf("node %q: %w", key, err)
		}
		out = append(out, NodeInput{ID: id, Input: input})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*n = out
	return nil
}

// DecodeCommand parses and validates a command.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return cmd, cmd.Validate()
}

// Validate checks that the fields required by the command type are present
// and well formed.
func (c Command) Validate() error {
	switch c.Type {
	case TypeCreateResolver, TypeUpdateInput, TypeDeleteInput, TypeDisposeResolver:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}
	if c.ResolverID == "" {
		return fmt.Errorf("%w: %s without resolverId", ErrInvalidCommand, c.Type)
	}

	switch c.Type {
	case TypeCreateResolver:
		if c.ResolverType == "" {
			return fmt.Errorf("%w: %s without resolverType", ErrInvalidCommand, c.Type)
		}
		seen := nodeid.NewSet()
		for _, in := range c.Nodes {
			if !seen.Add(in.ID) {
				return fmt.Errorf("%w: duplicate node %q", ErrInvalidCommand, in.ID)
			}
		}
	case TypeUpdateInput, TypeDeleteInput:
		if _, err := nodeid.Parse(c.NodeID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	return nil
}

// Input returns the update-input value, treating a missing value as null.
func (c Command) Input() cty.Value {
	if c.Value.Value == cty.NilVal {
		return value.Null
	}
	return c.Value.Value
}

// CreateResolver builds a create-resolver command.
func CreateResolver(resolverID, resolverType string, nodes NodeInputs, syncDependentMap bool) Command {
	return Command{
		Type:             TypeCreateResolver,
		ResolverID:       resolverID,
		ResolverType:     resolverType,
		Nodes:            nodes,
		SyncDependentMap: syncDependentMap,
	}
}

// UpdateInput builds an update-input command.
func UpdateInput(resolverID string, id nodeid.ID, input cty.Value) Command {
	return Command{
		Type:       TypeUpdateInput,
		ResolverID: resolverID,
		NodeID:     string(id),
		Value:      value.JSON{Value: input},
	}
}

// DeleteInput builds a delete-input command.
func DeleteInput(resolverID string, id nodeid.ID) Command {
	return Command{Type: TypeDeleteInput, ResolverID: resolverID, NodeID: string(id)}
}

// DisposeResolver builds a dispose-resolver command.
func DisposeResolver(resolverID string) Command {
	return Command{Type: TypeDisposeResolver, ResolverID: resolverID}
}
