package cli

import (
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/cascade"
	flowio "github.com/matzehuels/flowgraph/pkg/io"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// interactive reports whether stdin is a terminal the picker can use.
var interactive = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// deleteCommand runs a cascade deletion and writes the resulting flow.
func (c *CLI) deleteCommand() *cobra.Command {
	var (
		output string
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "delete <flow> [node-id]",
		Short: "Delete a node and cascade the cleanup",
		Long: `Delete a node and cascade the cleanup.

Incident edges are removed, decision branches pointing at the node are reset,
and preview lines are dropped. Nodes left without incoming edges are reported
as orphans but kept; use 'flowgraph orphans --clean' to remove them.

Without a node id, an interactive picker is shown when stdin is a terminal.
The result is written next to the input unless --output or --dry-run is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			f, err := c.loadFlow(input)
			if err != nil {
				return err
			}

			rec := &observability.CollectingReporter{}
			res := cascade.New(f.Graph,
				cascade.WithSink(c.sink()),
				cascade.WithReporter(observability.MultiReporter{rec, observability.LogReporter{Logger: c.Logger}}),
				cascade.WithPreviews(f.Previews),
			)
			res.CheckOrphans()

			var id string
			if len(args) == 2 {
				id = args[1]
			} else {
				id, err = pickNode(f.Graph.Nodes(), res.Orphans())
				if err != nil {
					return err
				}
				if id == "" {
					return nil
				}
			}

			var opts []cascade.DeleteOption
			if force {
				opts = append(opts, cascade.Force())
			}
			outs, _ := res.Delete(id, opts...)

			out := cmd.OutOrStdout()
			for _, o := range outs {
				printOutcome(out, o)
			}

			if dryRun {
				printInfo(out, "Dry run, nothing written")
				return nil
			}
			if output == "" {
				output = derivedPath(input, ".pruned"+filepath.Ext(input))
			}
			if err := flowio.Export(f, output); err != nil {
				return err
			}
			printFile(out, output)
			printStats(out, f.Graph.NodeCount(), f.Graph.EdgeCount(), nil)
			return rec.Err()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.pruned.<ext>)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the cascade without writing")
	cmd.Flags().BoolVar(&force, "force", false, "rescan orphans even if the node is already gone")
	return cmd
}

func printOutcome(w io.Writer, o cascade.Outcome) {
	if !o.Existed {
		printWarning(w, "Node %s not found", o.NodeID)
	} else {
		printSuccess(w, "Deleted %s (%s)", o.NodeID, o.Kind)
	}
	for _, a := range o.Actions {
		printDetail(w, "%s", a)
	}
	for _, id := range o.Orphaned {
		printWarning(w, "%s is now an orphan", id)
	}
	for _, id := range o.Resolved {
		printInfo(w, "%s is no longer an orphan", id)
	}
	for _, err := range o.Errors {
		printError(w, "%v", err)
	}
}

// pickNode runs the interactive picker. An empty id means the user quit.
func pickNode(nodes []flow.Node, orphans []string) (string, error) {
	if !interactive() {
		return "", ferrors.New(ferrors.ErrCodeInvalidInput, "node id required when stdin is not a terminal")
	}
	final, err := tea.NewProgram(NewNodePickerModel(nodes, orphans), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return "", ferrors.Wrap(ferrors.ErrCodeInternal, err, "node picker")
	}
	if m, ok := final.(NodePickerModel); ok && m.Selected != nil {
		return m.Selected.ID, nil
	}
	return "", nil
}
