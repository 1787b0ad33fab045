package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/errwrap"
	"github.com/specialistvlad/liveresolver/internal/hostclient"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/snapshot"
	"github.com/specialistvlad/liveresolver/internal/transport/inproc"
	"github.com/zclconf/go-cty/cty"
)

// Edit is a change applied after the snapshots reached their first fixed
// point. An empty ResolverID targets the only loaded resolver.
type Edit struct {
	ResolverID string
	NodeID     nodeid.ID
	Input      cty.Value
	Delete     bool
}

// NodeResult is the final state of one node.
type NodeResult struct {
	NodeID nodeid.ID
	Status string
	Output cty.Value
	Error  *protocol.ErrorInfo
}

// Result is the final state of one resolver instance.
type Result struct {
	ResolverID   string
	ResolverType string
	Nodes        []NodeResult
}

// Resolve loads the snapshots under paths, evaluates them in-process,
// applies edits in order and returns the final outputs.
func (a *App) Resolve(ctx context.Context, paths []string, edits []Edit) ([]Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolvers, err := snapshot.Load(ctx, paths...)
	if err != nil {
		return nil, err
	}
	if len(resolvers) == 0 {
		return nil, fmt.Errorf("no resolvers declared in %v", paths)
	}
	edits, err = targetEdits(resolvers, edits)
	if err != nil {
		return nil, err
	}

	link := inproc.New(ctx, a.NewRegistry)
	client := hostclient.New(link)
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	defer func() {
		_ = client.Close()
		<-done
	}()

	for _, r := range resolvers {
		if err := client.Create(ctx, r.ID, r.Type, r.Nodes, r.SyncDependents); err != nil {
			return nil, err
		}
	}
	var errs error
	for _, r := range resolvers {
		if err := client.WaitReady(ctx, r.ID); err != nil {
			errs = errwrap.Append(errs, errwrap.Wrapf(err, "resolver %s", r.ID))
		}
	}
	if errs != nil {
		return nil, errs
	}
	a.logger.Debug("Snapshots resolved.", "resolvers", len(resolvers))

	touched := make(map[string]struct{})
	for _, e := range edits {
		if e.Delete {
			err = client.Delete(ctx, e.ResolverID, e.NodeID)
		} else {
			err = client.Update(ctx, e.ResolverID, e.NodeID, e.Input)
		}
		if err != nil {
			return nil, err
		}
		touched[e.ResolverID] = struct{}{}
	}
	for id := range touched {
		if err := client.WaitReady(ctx, id); err != nil {
			errs = errwrap.Append(errs, errwrap.Wrapf(err, "resolver %s", id))
		}
	}
	if errs != nil {
		return nil, errs
	}

	results := make([]Result, 0, len(resolvers))
	for _, r := range resolvers {
		outputs := client.Outputs(r.ID)
		res := Result{ResolverID: r.ID, ResolverType: r.Type}
		for _, id := range client.Nodes(r.ID) {
			out := outputs[id]
			res.Nodes = append(res.Nodes, NodeResult{
				NodeID: id,
				Status: out.Status,
				Output: out.Value,
				Error:  out.Err,
			})
		}
		results = append(results, res)
	}
	return results, nil
}

func targetEdits(resolvers []snapshot.Resolver, edits []Edit) ([]Edit, error) {
	known := make(map[string]struct{}, len(resolvers))
	for _, r := range resolvers {
		known[r.ID] = struct{}{}
	}
	out := make([]Edit, 0, len(edits))
	for _, e := range edits {
		if e.ResolverID == "" {
			if len(resolvers) != 1 {
				return nil, fmt.Errorf("edit of %q must name a resolver: %d resolvers are loaded", e.NodeID, len(resolvers))
			}
			e.ResolverID = resolvers[0].ID
		}
		if _, ok := known[e.ResolverID]; !ok {
			return nil, fmt.Errorf("edit of %q targets unknown resolver %q", e.NodeID, e.ResolverID)
		}
		out = append(out, e)
	}
	return out, nil
}
