// Package pkg holds the flowgraph libraries.
//
// # Layout
//
//  1. [flow] - the workflow graph model: nodes, ports, edges
//  2. [flow/cycles] - cycle detection, severity and impact analysis
//  3. [flow/branch] - decision branch topology, attach and detach
//  4. [flow/preview] - provisional branch lines
//  5. [flow/layout] - layering and slot placement
//  6. [flow/cascade] - cascade deletion and orphan tracking
//  7. [publish] - the publish gate: termination, validation, config
//  8. [io] - JSON, YAML and TOML flow documents
//  9. [render] - DOT, SVG, PDF and PNG diagrams
//
// Supporting packages are [errors], [observability], [cache] and [buildinfo].
//
// # Data flow
//
//	flow document
//	     ↓
//	[io] Import → *flow.Graph + preview lines
//	     ↓
//	[flow/cascade], [flow/branch] edits
//	     ↓
//	[publish] terminate → cycles → semantics → branches → layout
//	     ↓
//	publish config / [render] diagram
//
// # Quick Start
//
//	f, _ := io.Import("flow.json")
//	p := publish.NewPublisher(f.Graph, publish.DefaultOptions(), publish.WithPreviews(f.Previews))
//	out := p.Publish(ctx)
//	if !out.Success {
//	    for _, is := range out.Issues.Errors {
//	        fmt.Println(is)
//	    }
//	}
package pkg
