package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowgraph/pkg/flow/layout"
)

// layoutCommand computes layers and slot positions.
func (c *CLI) layoutCommand() *cobra.Command {
	var (
		asJSON bool
		flags  layout.Options
	)

	cmd := &cobra.Command{
		Use:   "layout <flow>",
		Short: "Compute the hierarchical layout of a flow",
		Long: `Compute the hierarchical layout of a flow.

Nodes are layered by longest path from the start node. Within a layer,
children are centered under their parent in branch order. Flows with fewer
nodes than --min-nodes are left alone.

Geometry defaults come from the [layout] section of the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.loadFlow(args[0])
			if err != nil {
				return err
			}

			opts := c.cfg.LayoutOptions()
			fs := cmd.Flags()
			if fs.Changed("node-spacing") {
				opts.NodeSpacing = flags.NodeSpacing
			}
			if fs.Changed("layer-spacing") {
				opts.LayerSpacing = flags.LayerSpacing
			}
			if fs.Changed("min-nodes") {
				opts.MinNodes = flags.MinNodes
			}

			prog := newProgress(c.Logger)
			res, err := layout.NewPlanner(opts).Plan(f.Graph)
			if err != nil {
				return fmt.Errorf("layout %s: %w", args[0], err)
			}
			prog.done("planned layout", "nodes", len(res.Positions))

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			if res.Skipped {
				printInfo(out, "Layout skipped: fewer than %d nodes", opts.MinNodes)
				return nil
			}

			var rows [][]string
			for _, ids := range res.Order {
				for _, id := range ids {
					n, _ := f.Graph.Node(id)
					p := res.Positions[id]
					rows = append(rows, []string{
						id, n.Kind.String(),
						strconv.Itoa(p.Layer), strconv.Itoa(p.Slot),
						strconv.FormatFloat(p.X, 'f', 0, 64), strconv.FormatFloat(p.Y, 'f', 0, 64),
					})
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Node", "Kind", "Layer", "Slot", "X", "Y"}, rows, nil))
			printStats(out, f.Graph.NodeCount(), f.Graph.EdgeCount(), nil)
			printKeyValue(out, "root", res.Root)
			printKeyValue(out, "layers", strconv.Itoa(len(res.Order)))
			printKeyValue(out, "crossings", strconv.Itoa(res.Crossings))
			return nil
		},
	}

	d := layout.DefaultOptions()
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the layout as JSON")
	cmd.Flags().Float64Var(&flags.NodeSpacing, "node-spacing", d.NodeSpacing, "horizontal distance between slots")
	cmd.Flags().Float64Var(&flags.LayerSpacing, "layer-spacing", d.LayerSpacing, "vertical distance between layers")
	cmd.Flags().IntVar(&flags.MinNodes, "min-nodes", d.MinNodes, "skip flows with fewer nodes")
	return cmd
}
