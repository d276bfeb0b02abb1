package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/flowgraph/pkg/publish"
)

// publishCommand runs the full publish gate and writes the publish config.
func (c *CLI) publishCommand() *cobra.Command {
	var (
		output      string
		noTerminate bool
		maxNodes    int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "publish <flow>",
		Short: "Validate a flow and produce its publish config",
		Long: `Validate a flow and produce its publish config.

The publish gate runs in order: close unattached decision branches with
generated end nodes, reject cycles, run semantic checks, require every
branch to be attached, compute the layout and build the config. The first
failing step blocks the publish and the command exits with status 1.

Options default to the [publish] section of the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			input := args[0]

			f, err := c.loadFlow(input)
			if err != nil {
				return err
			}

			opts := c.cfg.PublishOptions()
			if cmd.Flags().Changed("no-auto-terminate") {
				opts.AutoTerminate = !noTerminate
			}
			if cmd.Flags().Changed("max-nodes") {
				opts.MaxNodes = maxNodes
			}

			p := publish.NewPublisher(f.Graph, opts,
				publish.WithLogger(logger),
				publish.WithSink(c.sink()),
				publish.WithPreviews(f.Previews),
			)
			outcome := p.Publish(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(w, outcome); err != nil {
					return err
				}
			} else {
				printOutcomeSummary(w, outcome)
			}
			if !outcome.Success {
				return ErrBlocked
			}

			if output == "" {
				output = derivedPath(input, ".publish.json")
			}
			if err := writeConfig(output, outcome.Config); err != nil {
				return err
			}
			if !asJSON {
				printFile(w, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "publish config file, .yaml for YAML (default: <input>.publish.json)")
	cmd.Flags().BoolVar(&noTerminate, "no-auto-terminate", false, "fail on unattached branches instead of closing them")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", publish.DefaultMaxNodes, "warn above this many nodes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

func printOutcomeSummary(w io.Writer, o publish.Outcome) {
	for _, t := range o.Terminals {
		printInfo(w, "Closed %s with %s", t.BranchID, t.NodeID)
	}
	for _, is := range o.Issues.Errors {
		printError(w, "%s", is)
	}
	for _, is := range o.Issues.Warnings {
		printWarning(w, "%s", is)
	}
	if o.Success {
		printSuccess(w, "Published %s", o.ID)
		m := o.Config.Metadata
		printStats(w, m.NodeCount, m.EdgeCount, nil)
		return
	}
	last := publish.Step("")
	if n := len(o.Steps); n > 0 {
		last = o.Steps[n-1]
	}
	printError(w, "Publish blocked at %s (%s)", last, o.State)
	if o.Cycles.HasCycles {
		fmt.Fprintln(w)
		printNextStep(w, "Inspect cycles", appName+" check <flow>")
	}
}

// writeConfig writes cfg as YAML for .yaml and .yml paths and as JSON
// otherwise.
func writeConfig(path string, cfg *publish.Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if cerr := enc.Close(); err == nil {
			err = cerr
		}
	default:
		err = writeJSON(f, cfg)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
