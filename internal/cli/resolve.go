package cli

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/liveresolver/internal/app"
	"github.com/specialistvlad/liveresolver/internal/config"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/spf13/cobra"
)

type resolveFlags struct {
	resolver string
	set      []string
	remove   []string
	format   string
}

func newResolveCommand(flags *globalFlags, s Streams) *cobra.Command {
	rf := &resolveFlags{}
	cmd := &cobra.Command{
		Use:   "resolve PATH...",
		Short: "Resolve HCL snapshots once and print the outputs",
		Long: "resolve loads every resolver declared in the given .hcl files or directories, " +
			"evaluates them, applies the --set and --delete edits in order and prints the final " +
			"state of every node.",
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(rf.format); err != nil {
				return err
			}
			edits, err := rf.edits()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, flags, config.TransportStdio)
			if err != nil {
				return err
			}
			results, err := app.NewApp(s.Err, cfg).Resolve(cmd.Context(), args, edits)
			if err != nil {
				return err
			}
			if err := writeResults(s.Out, rf.format, results); err != nil {
				return err
			}
			if failed := countFailed(results); failed > 0 {
				return &ExitError{Code: 3, Message: fmt.Sprintf("%d node(s) failed", failed)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rf.resolver, "resolver", "", "resolver the edits apply to (default: the only loaded resolver)")
	cmd.Flags().StringArrayVar(&rf.set, "set", nil, "set a node input after the first evaluation: NODE=JSON (repeatable)")
	cmd.Flags().StringArrayVar(&rf.remove, "delete", nil, "delete a node after the first evaluation (repeatable)")
	cmd.Flags().StringVar(&rf.format, "format", formatText, "output format: text|json|yaml")
	return cmd
}

// edits turns the flags into edits. Sets are applied before deletes.
func (rf *resolveFlags) edits() ([]app.Edit, error) {
	edits := make([]app.Edit, 0, len(rf.set)+len(rf.remove))
	for _, raw := range rf.set {
		key, val, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, usageError(fmt.Errorf("invalid --set %q: expected NODE=JSON", raw))
		}
		id, err := nodeid.Parse(key)
		if err != nil {
			return nil, usageError(fmt.Errorf("invalid --set %q: %w", raw, err))
		}
		input, err := value.Decode([]byte(val))
		if err != nil {
			return nil, usageError(fmt.Errorf("invalid --set %q: %w", raw, err))
		}
		edits = append(edits, app.Edit{ResolverID: rf.resolver, NodeID: id, Input: input})
	}
	for _, raw := range rf.remove {
		id, err := nodeid.Parse(raw)
		if err != nil {
			return nil, usageError(fmt.Errorf("invalid --delete %q: %w", raw, err))
		}
		edits = append(edits, app.Edit{ResolverID: rf.resolver, NodeID: id, Delete: true})
	}
	return edits, nil
}
