// Package handlers holds the compute functions available to resolver
// instances, keyed by resolver type.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// ComputeFunc computes one node's output.
//
// ctx is the cancellation token of the run that started the computation;
// long-running functions must return promptly once it is done. deps holds
// the current output of every node referenced by input, with value.Absent
// for references to nodes that do not exist. Functions must not retain or
// mutate their arguments.
type ComputeFunc func(ctx context.Context, id nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error)

// Module is the interface that all built-in modules implement to contribute
// resolver types.
type Module interface {
	Register(h *Handlers)
}

// RegisteredHandler describes one resolver type.
type RegisteredHandler struct {
	Description string
	Fn          ComputeFunc
}

// Handlers holds all the registered handlers.
type Handlers struct {
	all map[string]*RegisteredHandler
}

// New creates and initializes a new Handlers instance.
func New(modules ...Module) *Handlers {
	h := &Handlers{
		all: make(map[string]*RegisteredHandler),
	}
	for _, m := range modules {
		m.Register(h)
	}
	return h
}

// RegisterHandler registers the compute function of a resolver type.
func (r *Handlers) RegisterHandler(name string, handler *RegisteredHandler) {
	if _, exists := r.all[name]; exists {
		panic(fmt.Sprintf("resolver type '%s' already registered", name))
	}
	if handler == nil || handler.Fn == nil {
		panic(fmt.Sprintf("resolver type '%s' registered without a compute function", name))
	}
	slog.Debug("Registering resolver type.", "name", name)
	r.all[name] = handler
}

// Get returns the handler of a resolver type.
func (r *Handlers) Get(name string) (*RegisteredHandler, bool) {
	h, ok := r.all[name]
	return h, ok
}

// Names returns the registered resolver types in lexical order.
func (r *Handlers) Names() []string {
	names := make([]string, 0, len(r.all))
	for name := range r.all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
