// Package publish gates the publication of a flow graph.
//
// A [Validator] runs three stages in a fixed order: cycle detection, the
// semantic [Checker] collaborators, then branch completeness. The first
// stage that records an error blocks publication and later stages do not
// run, so branch and layout logic only ever see acyclic graphs. Problems are
// returned as a [Result] of enumerated issues rather than as errors.
//
// A [Publisher] wraps the gate in the full publish flow. It first closes
// open decision branches with auto-generated End nodes (see [Terminator]),
// then validates, lays the graph out and snapshots it as a [Config]:
//
//	p := publish.NewPublisher(g, publish.DefaultOptions(),
//		publish.WithSink(sink),
//		publish.WithLogger(logger),
//	)
//	out := p.Publish(ctx)
//	if !out.Success {
//		for _, issue := range out.Issues.Errors {
//			fmt.Println(issue)
//		}
//	}
package publish
