package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowgraph/pkg/flow/branch"
)

// branchesCommand lists the branches of a decision node.
func (c *CLI) branchesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "branches <flow> <decision-id>",
		Short: "List the branches of a decision node",
		Long: `List the branches of a decision node.

A decision node with n conditions has n+1 branches; the last one is the
default branch. Unattached branches are highlighted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.loadFlow(args[0])
			if err != nil {
				return err
			}

			topo := branch.New(f.Graph, branch.WithPreviews(f.Previews), branch.WithSink(c.sink()))
			bs, err := topo.BranchesOf(args[1])
			if err != nil {
				return err
			}
			if err := topo.Check(args[1]); err != nil {
				c.Logger.Warn("branch topology is inconsistent", "node", args[1], "err", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, bs)
			}

			rows := make([][]string, len(bs))
			open := 0
			for i, b := range bs {
				target := "-"
				if b.IsAttached {
					target = b.TargetNodeID
				} else {
					open++
				}
				preview := ""
				if l, ok := f.Previews.ByBranch(b.ID); ok {
					preview = l.ID
				}
				rows[i] = []string{b.ID, b.Label, b.Port, target, preview}
			}
			fmt.Fprintln(out, renderTable([]string{"Branch", "Label", "Port", "Target", "Preview"}, rows,
				func(row int) bool { return !bs[row].IsAttached }))
			if open > 0 {
				printWarning(out, "%d of %d branches unattached", open, len(bs))
			} else {
				printSuccess(out, "All %d branches attached", len(bs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the branches as JSON")
	return cmd
}
