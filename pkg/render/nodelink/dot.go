package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
	"github.com/matzehuels/flowgraph/pkg/render"
)

// Graph is what the renderer reads. [*flow.Graph] satisfies it.
type Graph interface {
	Nodes() []flow.Node
	Edges() []flow.Edge
	Node(id string) (flow.Node, bool)
}

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds the node kind, layer and metadata to labels.
	Detailed bool

	// Layers pins nodes of the same layer to the same rank.
	Layers layout.Layers

	// Cycle and Orphan nodes are highlighted.
	Cycle  []string
	Orphan []string

	// Previews are drawn as dotted edges, to a placeholder point when the
	// line has no target.
	Previews []preview.Line
}

type nodeStyle struct {
	shape, fill string
}

var kindStyles = map[flow.NodeKind]nodeStyle{
	flow.KindStart:    {"ellipse", "#d9f2d9"},
	flow.KindDecision: {"diamond", "#fff2cc"},
	flow.KindAction:   {"box", "white"},
	flow.KindWait:     {"box", "#e6eefa"},
	flow.KindEnd:      {"doublecircle", "#f2d9d9"},
}

// ToDOT converts a flow graph to Graphviz DOT source. The result can be
// rendered with [RenderSVG].
//
// Decision branches are labeled with their branch label, auto-generated End
// nodes are dashed, and nodes listed in Options.Cycle and Options.Orphan
// are outlined in red and orange.
func ToDOT(g Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [style=\"filled\", fontsize=18, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=14];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.4;\n")
	buf.WriteString("\n")

	cycle := set(opts.Cycle)
	orphan := set(opts.Orphan)
	for _, n := range g.Nodes() {
		attrs := fmtAttrs(n, fmtLabel(n, opts), cycle[n.ID], orphan[n.ID])
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		var attrs []string
		if idx, ok := e.BranchIndex(); ok {
			if src, ok := g.Node(e.Source); ok && src.Kind.IsBranching() {
				attrs = append(attrs, fmt.Sprintf("label=%q", branchLabel(src, idx)))
			}
		}
		if cycle[e.Source] && cycle[e.Target] {
			attrs = append(attrs, "color=red")
		}
		fmt.Fprintf(&buf, "  %q -> %q%s;\n", e.Source, e.Target, fmtList(attrs))
	}

	for _, l := range opts.Previews {
		target := l.TargetID
		if target == "" {
			target = l.ID
			fmt.Fprintf(&buf, "  %q [shape=point, width=0.1, label=\"\"];\n", target)
		}
		label := l.Label
		if label == "" {
			label = l.BranchID
		}
		fmt.Fprintf(&buf, "  %q -> %q [style=dotted, color=grey, label=%q];\n", l.SourceID, target, label)
	}

	if len(opts.Layers) > 0 {
		buf.WriteString("\n")
		ids := make([]string, 0, len(opts.Layers))
		for _, n := range g.Nodes() {
			ids = append(ids, n.ID)
		}
		for _, row := range opts.Layers.Groups(ids) {
			if len(row) < 2 {
				continue
			}
			quoted := make([]string, len(row))
			for i, id := range row {
				quoted[i] = strconv.Quote(id)
			}
			fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(quoted, "; "))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func branchLabel(n flow.Node, idx int) string {
	if idx < len(n.Conditions) {
		return branch.Label(n.Conditions[idx], idx)
	}
	return flow.DefaultBranchLabel
}

func fmtLabel(n flow.Node, opts Options) string {
	label := n.ID
	if n.Label != "" {
		label = n.Label
	}
	if !opts.Detailed {
		return label
	}

	parts := []string{"kind: " + n.Kind.String()}
	if l, ok := opts.Layers[n.ID]; ok {
		parts = append(parts, fmt.Sprintf("layer: %d", l))
	}
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
	}
	return label + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n flow.Node, label string, inCycle, orphan bool) []string {
	st := kindStyles[n.Kind]
	attrs := []string{
		fmt.Sprintf("label=%q", label),
		"shape=" + st.shape,
		fmt.Sprintf("fillcolor=%q", st.fill),
	}
	if n.Kind == flow.KindAction || n.Kind == flow.KindWait {
		attrs = append(attrs, "style=\"rounded,filled\"")
	}
	if n.IsAutoEnd() {
		attrs = append(attrs, "style=\"filled,dashed\"")
	}
	switch {
	case inCycle:
		attrs = append(attrs, "color=red", "penwidth=2")
	case orphan:
		attrs = append(attrs, "color=orange", "penwidth=2")
	}
	return attrs
}

func fmtList(attrs []string) string {
	if len(attrs) == 0 {
		return ""
	}
	return " [" + strings.Join(attrs, ", ") + "]"
}

func set(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// RenderSVG renders DOT source to SVG using the embedded Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the root svg tag with one whose viewBox starts
// at the origin and whose size matches it.
func normalizeViewBox(svg []byte) []byte {
	m := viewBoxRe.FindSubmatch(svg)
	if m == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(m[3]), 64)
	h, _ := strconv.ParseFloat(string(m[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}

// Render produces the diagram in the requested format. DOT is returned as
// is; PDF and PNG go through SVG.
func Render(ctx context.Context, dot string, format render.OutputFormat, scale float64) ([]byte, error) {
	if format == render.FormatDOT {
		return []byte(dot), nil
	}
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	switch format {
	case render.FormatPDF:
		return render.ToPDF(ctx, svg)
	case render.FormatPNG:
		return render.ToPNG(ctx, svg, scale)
	}
	return svg, nil
}
