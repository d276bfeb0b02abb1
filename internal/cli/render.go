package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/flowgraph/pkg/cache"
	"github.com/matzehuels/flowgraph/pkg/flow/cascade"
	"github.com/matzehuels/flowgraph/pkg/flow/cycles"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
	flowio "github.com/matzehuels/flowgraph/pkg/io"
	"github.com/matzehuels/flowgraph/pkg/render"
	"github.com/matzehuels/flowgraph/pkg/render/nodelink"
)

// renderOpts holds the flags of the render command.
type renderOpts struct {
	output   string
	format   string
	detailed bool
	noCache  bool
	scale    float64
}

// renderCommand draws a flow as a node-link diagram.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render <flow>",
		Short: "Render a flow as a node-link diagram",
		Long: `Render a flow as a node-link diagram.

Nodes of the same layer share a rank. Cycle members are outlined in red,
orphans in orange, and preview lines are drawn dotted.

SVG output is produced by the embedded Graphviz and cached by DOT source.
PDF and PNG additionally need rsvg-convert on PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("detailed") {
				opts.detailed = c.cfg.Render.Detailed
			}
			return c.runRender(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <input>.<format>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(render.FormatSVG), "output format: dot, svg, pdf, png")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show kind, layer and metadata in labels")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the render cache")
	cmd.Flags().Float64Var(&opts.scale, "scale", 2, "PNG scale factor")
	return cmd
}

func (c *CLI) runRender(cmd *cobra.Command, input string, opts renderOpts) error {
	ctx := cmd.Context()
	format, err := render.ParseOutputFormat(opts.format)
	if err != nil {
		return err
	}
	f, err := c.loadFlow(input)
	if err != nil {
		return err
	}

	dot := buildDOT(f, opts.detailed)

	store, err := c.newCache(opts.noCache)
	if err != nil {
		return err
	}
	defer store.Close()

	spinner := newSpinner(ctx, cmd.ErrOrStderr(), "Rendering "+string(format)+"...")
	spinner.Start()
	data, hit, err := renderCached(ctx, store, c.cfg.CacheTTL(), dot, format, opts.scale)
	if err != nil {
		spinner.StopWithError("Render failed")
		return err
	}
	spinner.Stop()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.Logger.Debug("rendered", "format", format, "bytes", len(data), "cached", hit)

	output := opts.output
	if output == "" {
		output = derivedPath(input, "."+string(format))
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Rendered %s", format)
	printFile(out, output)
	printStats(out, f.Graph.NodeCount(), f.Graph.EdgeCount(), &hit)
	return nil
}

// buildDOT converts the flow with layer ranks and cycle, orphan and preview
// annotations. A flow without a usable root is drawn without ranks.
func buildDOT(f *flowio.Flow, detailed bool) string {
	opts := nodelink.Options{Detailed: detailed, Previews: f.Previews.Lines()}
	if root, err := layout.FindRoot(f.Graph); err == nil {
		if layers, err := layout.ComputeLayers(f.Graph, root); err == nil {
			opts.Layers = layers
		}
	}
	opts.Cycle = cycles.NewDetector().Detect(f.Graph).AffectedNodes
	opts.Orphan, _ = cascade.New(f.Graph, cascade.WithPreviews(f.Previews)).CheckOrphans()
	return nodelink.ToDOT(f.Graph, opts)
}

// renderCached renders dot in format. DOT passes through; everything else
// is looked up in store under a key of the source and render parameters.
func renderCached(ctx context.Context, store cache.Cache, ttl time.Duration, dot string, format render.OutputFormat, scale float64) ([]byte, bool, error) {
	if format == render.FormatDOT {
		return []byte(dot), false, nil
	}
	key := cache.Key("render", dot, format, scale)
	return cache.GetOrCompute(ctx, store, key, ttl, func() ([]byte, error) {
		return nodelink.Render(ctx, dot, format, scale)
	})
}
