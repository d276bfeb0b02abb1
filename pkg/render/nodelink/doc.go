// Package nodelink renders flow graphs as node-link diagrams.
//
// # Usage
//
// Convert a graph to DOT, then render it:
//
//	dot := nodelink.ToDOT(g, nodelink.Options{Layers: layers})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// [Render] dispatches on a [render.OutputFormat] and reaches PDF and PNG
// through SVG.
//
// # Styling
//
// Node shape follows the node kind: start nodes are ellipses, decisions are
// diamonds, actions and waits are rounded boxes and end nodes are double
// circles. Auto-generated end nodes are dashed. Branch edges carry the
// branch label, preview lines are dotted, and nodes passed in
// [Options].Cycle or [Options].Orphan are outlined.
//
// When [Options].Layers is set, nodes sharing a layer are pinned to the same
// rank so the diagram matches the hierarchical layout.
//
// SVG rendering uses [github.com/goccy/go-graphviz] in process. PDF and PNG
// conversion requires librsvg (rsvg-convert).
package nodelink
