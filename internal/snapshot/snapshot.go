// Package snapshot loads resolver instances declared in HCL files.
//
// A snapshot file declares resolver instances and the inputs of their
// nodes:
//
//	resolver "sum" "totals" {
//	  sync_dependents = true
//
//	  node "a" { input = 1 }
//	  node "b" { input = [node.a, 2] }
//	  node "c" { input = { left = ref("a"), right = node.b } }
//	}
//
// node.<id> and ref("<id>") both produce references. ref is needed for ids
// that are not valid HCL identifiers. A referenced node does not have to be
// declared; it simply resolves as absent.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/errwrap"
	"github.com/specialistvlad/liveresolver/internal/fsutil"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Extension is the file extension scanned in directories.
const Extension = ".hcl"

// nodeRoot is the variable holding node references in input expressions.
const nodeRoot = "node"

// Resolver is one declared resolver instance.
type Resolver struct {
	Type           string
	ID             string
	SyncDependents bool
	Nodes          protocol.NodeInputs
	// Source is the file the resolver was declared in.
	Source string
}

// CreateCommand returns the create-resolver command for r.
func (r Resolver) CreateCommand() protocol.Command {
	return protocol.CreateResolver(r.ID, r.Type, r.Nodes, r.SyncDependents)
}

type fileRoot struct {
	Resolvers []*resolverBlock `hcl:"resolver,block"`
}

type resolverBlock struct {
	Type           string       `hcl:"type,label"`
	ID             string       `hcl:"id,label"`
	SyncDependents bool         `hcl:"sync_dependents,optional"`
	Nodes          []*nodeBlock `hcl:"node,block"`
}

type nodeBlock struct {
	ID    string         `hcl:"id,label"`
	Input hcl.Expression `hcl:"input"`
	Range hcl.Range      `hcl:",def_range"`
}

// Load reads every snapshot file under paths. Directories are scanned
// recursively for .hcl files. Problems from all files are reported
// together.
func Load(ctx context.Context, paths ...string) ([]Resolver, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered snapshot files.", "count", len(files))

	parser := hclparse.NewParser()
	var (
		out  []Resolver
		errs error
		seen = make(map[string]string)
	)
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			errs = errwrap.Append(errs, fmt.Errorf("failed to parse snapshot %s: %w", file, diags))
			continue
		}
		resolvers, err := decode(file, f.Body)
		if err != nil {
			errs = errwrap.Append(errs, err)
			continue
		}
		for _, r := range resolvers {
			if prev, dup := seen[r.ID]; dup {
				errs = errwrap.Append(errs, fmt.Errorf("resolver %q declared in %s and %s", r.ID, prev, file))
				continue
			}
			seen[r.ID] = file
			out = append(out, r)
		}
	}
	if errs != nil {
		return nil, errs
	}
	logger.Debug("Snapshots loaded.", "resolvers", len(out))
	return out, nil
}

// Parse decodes a single snapshot document.
func Parse(filename string, src []byte) ([]Resolver, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", filename, diags)
	}
	return decode(filename, f.Body)
}

func decode(filename string, body hcl.Body) ([]Resolver, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", filename, diags)
	}

	out := make([]Resolver, 0, len(root.Resolvers))
	var errs error
	for _, block := range root.Resolvers {
		r, err := translate(filename, block)
		if err != nil {
			errs = errwrap.Append(errs, err)
			continue
		}
		out = append(out, r)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func translate(filename string, block *resolverBlock) (Resolver, error) {
	r := Resolver{
		Type:           block.Type,
		ID:             block.ID,
		SyncDependents: block.SyncDependents,
		Source:         filename,
	}
	if r.Type == "" || r.ID == "" {
		return r, fmt.Errorf("%s: resolver blocks need a type and an id", filename)
	}

	declared := nodeid.NewSet()
	var errs error
	for _, n := range block.Nodes {
		id, err := nodeid.Parse(n.ID)
		if err != nil {
			errs = errwrap.Append(errs, fmt.Errorf("%s: resolver %q: %w", n.Range, r.ID, err))
			continue
		}
		if !declared.Add(id) {
			errs = errwrap.Append(errs, fmt.Errorf("%s: resolver %q: node %q declared twice", n.Range, r.ID, id))
			continue
		}
		input, err := evalInput(n.Input)
		if err != nil {
			errs = errwrap.Append(errs, errwrap.Wrapf(err, "resolver %q node %q", r.ID, id))
			continue
		}
		r.Nodes = append(r.Nodes, protocol.NodeInput{ID: id, Input: input})
	}
	if errs != nil {
		return r, errs
	}
	return r, nil
}

// evalInput evaluates an input expression. Every node.<id> traversal in
// the expression becomes a reference to <id>.
func evalInput(expr hcl.Expression) (cty.Value, error) {
	refs := make(map[string]cty.Value)
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != nodeRoot || len(traversal) < 2 {
			continue
		}
		attr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		id, err := nodeid.Parse(attr.Name)
		if err != nil {
			return cty.NilVal, err
		}
		refs[attr.Name] = value.Ref(id)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{nodeRoot: cty.ObjectVal(refs)},
		Functions: map[string]function.Function{"ref": value.RefFunc},
	}
	v, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	if !v.IsWhollyKnown() {
		return cty.NilVal, fmt.Errorf("input is not fully known")
	}
	return v, nil
}

func findFiles(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		files, err := fsutil.FindFilesByExtension(path, Extension)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(filepath.Clean(f))
		}
	}
	return out, nil
}
