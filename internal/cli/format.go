package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/specialistvlad/liveresolver/internal/app"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/value"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return usageError(fmt.Errorf("invalid format %q: must be text, json or yaml", f))
	}
}

// resultDoc is the json and yaml rendering of a resolver result.
type resultDoc struct {
	ResolverID   string    `json:"resolverId" yaml:"resolverId"`
	ResolverType string    `json:"resolverType" yaml:"resolverType"`
	Nodes        []nodeDoc `json:"nodes" yaml:"nodes"`
}

type nodeDoc struct {
	NodeID string              `json:"nodeId" yaml:"nodeId"`
	Status string              `json:"status" yaml:"status"`
	Output any                 `json:"output,omitempty" yaml:"output,omitempty"`
	Error  *protocol.ErrorInfo `json:"error,omitempty" yaml:"error,omitempty"`
}

func writeResults(w io.Writer, format string, results []app.Result) error {
	switch format {
	case formatText:
		return writeText(w, results)
	case formatJSON, formatYAML:
		docs, err := toDocs(results)
		if err != nil {
			return err
		}
		if format == formatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return validateFormat(format)
	}
}

func writeText(w io.Writer, results []app.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOLVER\tNODE\tSTATUS\tOUTPUT")
	for _, r := range results {
		for _, n := range r.Nodes {
			out := value.Format(n.Output)
			if n.Error != nil {
				out = fmt.Sprintf("%s: %s", n.Error.Kind, n.Error.Message)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ResolverID, n.NodeID, n.Status, out)
		}
	}
	return tw.Flush()
}

func toDocs(results []app.Result) ([]resultDoc, error) {
	docs := make([]resultDoc, 0, len(results))
	for _, r := range results {
		doc := resultDoc{ResolverID: r.ResolverID, ResolverType: r.ResolverType, Nodes: []nodeDoc{}}
		for _, n := range r.Nodes {
			nd := nodeDoc{NodeID: string(n.NodeID), Status: n.Status, Error: n.Error}
			if n.Status == protocol.StatusResolved {
				raw, err := value.ToGo(n.Output)
				if err != nil {
					return nil, fmt.Errorf("node %s/%s: %w", r.ResolverID, n.NodeID, err)
				}
				nd.Output = plain(raw)
			}
			doc.Nodes = append(doc.Nodes, nd)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// plain replaces json.Number with int64 or float64 so yaml renders numbers
// unquoted. Integers beyond int64 stay as their decimal text.
func plain(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		for i := range v {
			v[i] = plain(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = plain(v[k])
		}
		return v
	default:
		return v
	}
}

func countFailed(results []app.Result) int {
	n := 0
	for _, r := range results {
		for _, node := range r.Nodes {
			if node.Status != protocol.StatusResolved {
				n++
			}
		}
	}
	return n
}
