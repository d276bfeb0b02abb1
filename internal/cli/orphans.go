package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowgraph/pkg/flow/cascade"
	flowio "github.com/matzehuels/flowgraph/pkg/io"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// orphansCommand lists orphan nodes and optionally removes them.
func (c *CLI) orphansCommand() *cobra.Command {
	var (
		clean  bool
		output string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "orphans <flow>",
		Short: "List or clean up orphan nodes",
		Long: `List or clean up orphan nodes.

An orphan is a node other than a start node with no incoming edge and no
incoming preview line. With --clean every orphan is deleted through the
cascade; nodes orphaned by that cleanup are reported and kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			f, err := c.loadFlow(input)
			if err != nil {
				return err
			}

			res := cascade.New(f.Graph,
				cascade.WithSink(c.sink()),
				cascade.WithReporter(observability.LogReporter{Logger: c.Logger}),
				cascade.WithPreviews(f.Previews),
			)
			detected, _ := res.CheckOrphans()

			out := cmd.OutOrStdout()
			if !clean {
				if asJSON {
					if detected == nil {
						detected = []string{}
					}
					return writeJSON(out, detected)
				}
				if len(detected) == 0 {
					printSuccess(out, "No orphan nodes")
					return nil
				}
				rows := make([][]string, len(detected))
				for i, id := range detected {
					n, _ := f.Graph.Node(id)
					rows[i] = []string{id, n.Kind.String(), n.Label, fmt.Sprint(f.Graph.OutDegree(id))}
				}
				fmt.Fprintln(out, renderTable([]string{"Node", "Kind", "Label", "Out"}, rows, nil))
				printWarning(out, "%d orphan node(s)", len(detected))
				return nil
			}

			n := res.CleanupAllOrphanNodes()
			printSuccess(out, "Removed %d orphan node(s)", n)
			if left := res.Orphans(); len(left) > 0 {
				printWarning(out, "%d node(s) orphaned by the cleanup: %v", len(left), left)
			}
			if output == "" {
				output = derivedPath(input, ".clean"+filepath.Ext(input))
			}
			if err := flowio.Export(f, output); err != nil {
				return err
			}
			printFile(out, output)
			printStats(out, f.Graph.NodeCount(), f.Graph.EdgeCount(), nil)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "delete every orphan node")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file with --clean (default: <input>.clean.<ext>)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print orphan ids as JSON")
	return cmd
}
