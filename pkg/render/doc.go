// Package render provides output format conversion for flow diagrams.
//
// The [nodelink] subpackage turns a flow graph into Graphviz DOT and SVG.
// [ToPDF] and [ToPNG] convert any SVG to other formats using the external
// rsvg-convert tool (from librsvg):
//
//	svg, err := nodelink.RenderSVG(ctx, dot)
//	pdf, err := render.ToPDF(svg)
//	png, err := render.ToPNG(svg, 2.0) // 2x scale
package render
