// Package io reads and writes flow documents in JSON, YAML and TOML.
//
// # Document Format
//
// A document lists nodes, edges and optional preview lines:
//
//	{
//	  "nodes": [
//	    {"id": "start", "kind": "start"},
//	    {"id": "check", "kind": "decision", "conditions": [{"expression": "amount > 100"}]},
//	    {"id": "vip", "kind": "action"},
//	    {"id": "end", "kind": "end"}
//	  ],
//	  "edges": [
//	    {"source": "start", "target": "check"},
//	    {"source": "check", "sourcePort": "out-0", "target": "vip"},
//	    {"source": "vip", "target": "end"}
//	  ],
//	  "previews": [
//	    {"source": "check", "branchId": "check_branch_1"}
//	  ]
//	}
//
// Node kinds are parsed with [flow.ParseKind], so the upper-case aliases used
// by external editors ("INPUT", "DECISION_NODE", "OUTPUT") are accepted. Edge
// ports default to "out" and "in"; a decision branch uses "out-<index>".
// YAML uses the same keys. TOML uses snake_case for multi-word keys
// (source_port, branch_id, auto_generated).
//
// # Import and Export
//
// [Import] and [Export] pick the format from the file extension (.json,
// .yaml/.yml, .toml). [Read] and [Write] take an explicit [Format]:
//
//	f, err := io.Import("campaign.yaml")
//	if err != nil {
//	    return err
//	}
//	err = io.Write(f, os.Stdout, io.FormatJSON)
//
// Decoding failures carry the INVALID_FORMAT code, bad node IDs carry
// INVALID_NODE_ID and structural violations keep the STRUCTURAL_ERROR code
// of [flow.Graph.AddEdge]. Each error names the offending node or edge.
//
// Documents round-trip: nodes, edges, ports, conditions, metadata and preview
// lines survive export and re-import, and node and edge order is preserved.
package io
