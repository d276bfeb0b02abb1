package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowgraph/pkg/flow/cycles"
)

type checkReport struct {
	Cycles cycles.Report `json:"cycles"`
	Impact cycles.Impact `json:"impact"`
}

// checkCommand reports cycles and the suggested fixes.
func (c *CLI) checkCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <flow>",
		Short: "Detect cycles and analyze their impact",
		Long: `Detect cycles in a flow and analyze their impact.

Each cycle is rated by length: two nodes is high severity, three or four is
medium, five or more is low. The command exits with status 1 when any
cycle is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.loadFlow(args[0])
			if err != nil {
				return err
			}

			det := cycles.NewDetector(cycles.WithSink(c.sink()))
			rep := checkReport{Cycles: det.Detect(f.Graph)}
			rep.Impact = cycles.AnalyzeImpact(f.Graph, rep.Cycles.Cycles)
			stats := det.Stats()
			c.Logger.Debug("cycle scan", "nodes", stats.NodesChecked, "roots", stats.Roots, "cycles", stats.CyclesFound)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, rep); err != nil {
					return err
				}
			} else {
				printCheck(cmd, rep)
			}
			if rep.Cycles.HasCycles {
				return ErrBlocked
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printCheck(cmd *cobra.Command, rep checkReport) {
	out := cmd.OutOrStdout()
	if !rep.Cycles.HasCycles {
		printSuccess(out, "No cycles")
		return
	}

	printError(out, "%d cycle(s) across %d node(s)", len(rep.Cycles.Cycles), len(rep.Cycles.AffectedNodes))
	for _, cy := range rep.Cycles.Cycles {
		printDetail(out, "[%s] %s", cy.Severity, cy.String())
	}
	if len(rep.Impact.ImpactedFlows) > 0 {
		printKeyValue(out, "flows", strings.Join(rep.Impact.ImpactedFlows, ", "))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, StyleTitle.Render("Recommendations"))
	for _, r := range rep.Impact.Recommendations {
		printInfo(out, "%s: %s", r.Type, r.Description)
	}
}
